package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_LineFormat(t *testing.T) {
	var buf bytes.Buffer
	j := New(&buf)
	j.now = func() time.Time { return time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, j.Log("Resolved IP for db.example.com: 192.0.2.10"))
	assert.Equal(t, "[2025-08-18T12:00:00.000000Z] Resolved IP for db.example.com: 192.0.2.10\n", buf.String())
}

func TestJournal_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", DefaultFile)

	j1, c1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j1.Log("first run"))
	require.NoError(t, c1.Close())

	j2, c2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j2.Log("second run"))
	require.NoError(t, c2.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "first run"))
	assert.True(t, strings.HasSuffix(lines[1], "second run"))
	assert.True(t, strings.HasPrefix(lines[0], "["))
}

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"host=db password=hunter2 sslmode=require":     "host=db password=REDACTED sslmode=require",
		"postgres://reader:hunter2@db:5432/dda":         "postgres://reader:REDACTED@db:5432/dda",
		"Connection successful to PostgreSQL database.": "Connection successful to PostgreSQL database.",
		"GET http://127.0.0.1:8080/api/defaults":        "GET http://127.0.0.1:8080/api/defaults",
	}
	for in, want := range cases {
		assert.Equal(t, want, Redact(in))
	}
}
