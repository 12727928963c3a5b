package transport

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/abusehawk/internal/event"
	"github.com/telhawk-systems/abusehawk/internal/logging"
)

func TestFileReaderSkipsCommentsAndBlankLines(t *testing.T) {
	input := strings.Join([]string{
		"# replay fixture",
		"",
		`{"timestamp":"2024-01-01T00:00:00Z","kind":"auth_failure","source_address":"10.0.0.1"}`,
		"   ",
		`{"timestamp":"2024-01-01T00:00:01Z","kind":"http_request","source_address":"10.0.0.2","status":404}`,
	}, "\n")

	fr := NewFileReader(strings.NewReader(input), logging.Default())

	e, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, event.KindAuthFailure, e.Kind)
	assert.Equal(t, "10.0.0.1", e.SourceAddress)

	e, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, event.KindHTTPRequest, e.Kind)
	assert.Equal(t, 404, e.Status)

	_, err = fr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFileReaderSkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		"not json at all",
		`{"kind":"auth_failure"}`,
		`{"timestamp":"2024-01-01T00:00:00Z","kind":"mystery"}`,
		`{"timestamp":"2024-01-01T00:00:00Z","kind":"account_create","subject_user":"a@example.com"}`,
	}, "\n")

	fr := NewFileReader(strings.NewReader(input), logging.Default())

	e, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, event.KindAccountCreate, e.Kind)
	assert.Equal(t, "a@example.com", e.SubjectUser)

	_, err = fr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFileReaderEmptyStream(t *testing.T) {
	fr := NewFileReader(strings.NewReader(""), logging.Default())
	_, err := fr.Next()
	assert.Equal(t, io.EOF, err)
}
