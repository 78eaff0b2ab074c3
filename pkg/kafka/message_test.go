package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtraction(t *testing.T) {
	t.Run("parses a full payload", func(t *testing.T) {
		msg := &IncomingMessage{
			Value: []byte(`{"advisor_id":"a1","client_id":"c1","source":"audio","data":{"email":"x@example.com"}}`),
		}
		require.NoError(t, msg.ParseExtraction())
		require.NotNil(t, msg.Extraction)
		assert.Equal(t, "a1", msg.Extraction.AdvisorID)
		assert.Equal(t, "c1", msg.Extraction.ClientID)
		assert.Equal(t, "audio", msg.Extraction.Source)
	})

	t.Run("falls back to the advisor_id header", func(t *testing.T) {
		msg := &IncomingMessage{
			Value:   []byte(`{"client_id":"c1","data":{"email":"x@example.com"}}`),
			Headers: map[string]string{"advisor_id": "a9"},
		}
		require.NoError(t, msg.ParseExtraction())
		assert.Equal(t, "a9", msg.Extraction.AdvisorID)
		assert.Equal(t, "a9", msg.GetAdvisorID())
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`not json`)}
		assert.Error(t, msg.ParseExtraction())
		assert.Nil(t, msg.Extraction)
	})
}

func TestExtractionMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     ExtractionMessage
		wantErr string
	}{
		{
			name: "valid",
			msg:  ExtractionMessage{AdvisorID: "a1", ClientID: "c1", Data: map[string]any{"email": "x@example.com"}},
		},
		{
			name:    "missing advisor",
			msg:     ExtractionMessage{ClientID: "c1", Data: map[string]any{"k": "v"}},
			wantErr: "advisor_id",
		},
		{
			name:    "missing client",
			msg:     ExtractionMessage{AdvisorID: "a1", Data: map[string]any{"k": "v"}},
			wantErr: "client_id",
		},
		{
			name:    "empty data",
			msg:     ExtractionMessage{AdvisorID: "a1", ClientID: "c1"},
			wantErr: "data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
