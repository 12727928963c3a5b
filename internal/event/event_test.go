package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "valid auth failure",
			input: `{"timestamp":"2024-01-01T00:00:00Z","kind":"auth_failure","subject_user":"spock@example.net","source_address":"216.160.83.56"}`,
		},
		{
			name:  "valid http request",
			input: `{"timestamp":"2024-01-01T00:00:00Z","kind":"http_request","source_address":"10.0.0.1","request_path":"/login","status":401}`,
		},
		{
			name:    "missing timestamp",
			input:   `{"kind":"auth_failure","source_address":"10.0.0.1"}`,
			wantErr: true,
		},
		{
			name:    "unknown kind",
			input:   `{"timestamp":"2024-01-01T00:00:00Z","kind":"dns_query"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `kind=auth_failure`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.False(t, e.Timestamp.IsZero())
			assert.True(t, e.Kind.IsValid())
		})
	}
}

func TestIdentity(t *testing.T) {
	e := Event{SubjectUser: "riker@example.net"}
	assert.Equal(t, "riker@example.net", e.Identity())

	e.UID = "00000000000000000000000000000000"
	assert.Equal(t, "00000000000000000000000000000000", e.Identity())
}

func TestIsClientError(t *testing.T) {
	assert.True(t, (&Event{Kind: KindHTTPRequest, Status: 404}).IsClientError())
	assert.False(t, (&Event{Kind: KindHTTPRequest, Status: 200}).IsClientError())
	assert.False(t, (&Event{Kind: KindHTTPRequest, Status: 500}).IsClientError())
	assert.False(t, (&Event{Kind: KindAuthFailure, Status: 404}).IsClientError())
}

func TestSortByTimestamp(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base.Add(2 * time.Second), SubjectUser: "c"},
		{Timestamp: base, SubjectUser: "b"},
		{Timestamp: base, SubjectUser: "a"},
		{Timestamp: base.Add(time.Second), SubjectUser: "d"},
	}
	SortByTimestamp(events)

	assert.Equal(t, "a", events[0].SubjectUser)
	assert.Equal(t, "b", events[1].SubjectUser)
	assert.Equal(t, "d", events[2].SubjectUser)
	assert.Equal(t, "c", events[3].SubjectUser)
}
