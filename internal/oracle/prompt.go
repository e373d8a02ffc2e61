package oracle

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an experienced technical interviewer and career coach. Always respond with a single valid JSON object and nothing else.`

func questionPrompt(req QuestionRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate one interview question for a %s candidate at level %q", req.Role, req.Level)
	if req.Technology != "" {
		fmt.Fprintf(&b, " focused on %s", req.Technology)
	}
	if req.Company != "" {
		fmt.Fprintf(&b, ", preparing for an interview at %s", req.Company)
	}
	b.WriteString(".\n")

	if len(req.QuestionTypes) > 0 {
		fmt.Fprintf(&b, "Pick one question type from: %s.\n", strings.Join(req.QuestionTypes, ", "))
	}

	if len(req.PreviousQuestions) > 0 {
		b.WriteString("Do not repeat or closely paraphrase any of these already asked questions:\n")
		for _, q := range req.PreviousQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}

	b.WriteString(`
Return a JSON object with exactly this shape:
{"question": "<the question text>", "type": "technical|behavioral|system-design|domain-knowledge"}`)

	return b.String()
}

func evaluationPrompt(req EvaluationRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Evaluate this interview answer from a %s candidate at level %q.\n\n", req.Role, req.Level)
	fmt.Fprintf(&b, "Question (%s): %s\n\n", req.Type, req.Question)
	fmt.Fprintf(&b, "Answer: %s\n", req.Answer)

	b.WriteString(`
Score the answer from 1 to 10 and give concise, actionable feedback.
Return a JSON object with exactly this shape:
{"score": <1-10>, "feedback": "<2-3 sentences>", "strengths": ["..."], "improvements": ["..."]}`)

	return b.String()
}

func gapAnalysisPrompt(req GapAnalysisRequest) string {
	var b strings.Builder

	b.WriteString("Compare the resume below against the job description and identify gaps.\n\n")
	fmt.Fprintf(&b, "RESUME:\n%s\n\n", req.Resume)
	fmt.Fprintf(&b, "JOB DESCRIPTION:\n%s\n", req.JobDescription)

	b.WriteString(`
Return a JSON object with exactly this shape:
{"match_score": <0-100>, "missing_skills": ["..."], "matching_skills": ["..."], "recommendations": ["..."], "summary": "<2-3 sentences>"}`)

	return b.String()
}

func coverLetterPrompt(req CoverLetterRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a cover letter for the role of %s", req.Role)
	if req.Company != "" {
		fmt.Fprintf(&b, " at %s", req.Company)
	}
	b.WriteString(", grounded in the candidate's resume. Keep it under 300 words, specific and unembellished.\n\n")
	fmt.Fprintf(&b, "RESUME:\n%s\n\n", req.Resume)
	if req.JobDescription != "" {
		fmt.Fprintf(&b, "JOB DESCRIPTION:\n%s\n", req.JobDescription)
	}

	b.WriteString(`
Return a JSON object with exactly this shape:
{"cover_letter": "<the letter>"}`)

	return b.String()
}

func roadmapPrompt(req RoadmapRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Build a %d-week learning roadmap for a %s candidate at level %q", req.Weeks, req.Role, req.Level)
	if req.Technology != "" {
		fmt.Fprintf(&b, " targeting %s", req.Technology)
	}
	b.WriteString(".\n")

	b.WriteString(`
Return a JSON object with exactly this shape:
{"weeks": [{"week": <n>, "focus": "...", "topics": ["..."], "resources": ["..."]}], "summary": "<1-2 sentences>"}`)

	return b.String()
}
