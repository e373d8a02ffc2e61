package domain

const (
	EventNameSessionCompleted = "session.completed"
	EventNameBoardUpdated     = "board.updated"
)

// EventSessionCompleted is published once when a session reaches its final
// round. Subscribers persist the summary, update streaks and refresh the
// board; none of them may block or fail the completing request.
type EventSessionCompleted struct {
	Session Session
	Summary SessionSummary
}

func (EventSessionCompleted) Name() string { return EventNameSessionCompleted }

type EventBoardUpdated struct {
	Board Board
}

func (EventBoardUpdated) Name() string { return EventNameBoardUpdated }
