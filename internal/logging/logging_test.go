package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2} \[(INFO|ERROR|WARN|DEBUG)\] `)

func TestRecordFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info")

	log.Info("backup created", "archive", "home.tar.gz")
	log.Error("archive failed", "error", "disk full")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	assert.Regexp(t, recordPattern, lines[0])
	assert.Contains(t, lines[0], "[INFO] backup created")
	assert.Contains(t, lines[0], "archive=home.tar.gz")
	assert.Contains(t, lines[1], "[ERROR] archive failed")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info")

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	debug := NewWriter(&buf, "debug")
	debug.Debug("shown")
	assert.Contains(t, buf.String(), "[DEBUG] shown")
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With("run", "abcd1234")

	log.Info("step")
	assert.Contains(t, buf.String(), "run=abcd1234")
}

func TestFileIsAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "backup.log")

	for i := 0; i < 2; i++ {
		log, closer, err := New(Options{Level: "info", File: path})
		require.NoError(t, err)
		log.Info("run")
		require.NoError(t, closer.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "[INFO] run"))
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}
