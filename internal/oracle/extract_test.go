package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject(t *testing.T) {
	type payload struct {
		Question string `json:"question"`
		Type     string `json:"type"`
	}

	tests := map[string]struct {
		raw     string
		want    payload
		wantErr bool
	}{
		"plain object": {
			raw:  `{"question":"Explain hash maps","type":"technical"}`,
			want: payload{Question: "Explain hash maps", Type: "technical"},
		},

		"object wrapped in prose": {
			raw:  "Sure! Here is your question:\n\n{\"question\":\"Explain hash maps\",\"type\":\"technical\"}\n\nGood luck!",
			want: payload{Question: "Explain hash maps", Type: "technical"},
		},

		"object wrapped in markdown fence": {
			raw:  "```json\n{\"question\":\"Explain hash maps\",\"type\":\"technical\"}\n```",
			want: payload{Question: "Explain hash maps", Type: "technical"},
		},

		"first of multiple objects wins": {
			raw:  `{"question":"first","type":"technical"} and also {"question":"second","type":"behavioral"}`,
			want: payload{Question: "first", Type: "technical"},
		},

		"nested braces stay balanced": {
			raw:  `prefix {"question":"what does {} mean in Go?","type":"technical"} suffix`,
			want: payload{Question: "what does {} mean in Go?", Type: "technical"},
		},

		"braces inside strings are ignored": {
			raw:  `{"question":"escaped \" and } inside","type":"technical"}`,
			want: payload{Question: `escaped " and } inside`, Type: "technical"},
		},

		"no object at all": {
			raw:     "I could not come up with a question, sorry.",
			wantErr: true,
		},

		"unterminated object": {
			raw:     `{"question":"never closed","type":"technical"`,
			wantErr: true,
		},

		"trailing comma is a parse failure": {
			raw:     `{"question":"x","type":"technical",}`,
			wantErr: true,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var got payload
			err := ExtractObject(tt.raw, &got)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
