package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAndRecent(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)

	require.NoError(t, l.Log(Entry{RunID: "run-1", Gate: "preflight", Outcome: "pass"}))
	require.NoError(t, l.Log(Entry{RunID: "run-1", Gate: "risk", Outcome: "pass", RiskLevel: "MEDIUM"}))
	require.NoError(t, l.Log(Entry{RunID: "run-1", Gate: "confirm", Outcome: "approved"}))

	records, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// newest first
	assert.Equal(t, "confirm", records[0].Gate)
	assert.Equal(t, "preflight", records[2].Gate)
	assert.Equal(t, "MEDIUM", records[1].RiskLevel)
}

func TestRecentLimit(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Log(Entry{RunID: "run-1", Gate: "execute", Outcome: "pass"}))
	}

	records, err := l.Recent(2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestHashChain(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)

	require.NoError(t, l.Log(Entry{RunID: "run-1", Gate: "preflight", Outcome: "pass"}))
	require.NoError(t, l.Log(Entry{RunID: "run-1", Gate: "confirm", Outcome: "denied"}))

	records, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// records[1] is the oldest
	assert.Empty(t, records[1].PrevHash)
	assert.Equal(t, records[1].Hash, records[0].PrevHash)
	assert.Equal(t, computeHash(records[0]), records[0].Hash)
}

func TestChainSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	l1, err := NewLogger(dir)
	require.NoError(t, err)
	require.NoError(t, l1.Log(Entry{RunID: "run-1", Gate: "preflight", Outcome: "pass"}))

	l2, err := NewLogger(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Log(Entry{RunID: "run-2", Gate: "preflight", Outcome: "pass"}))

	ok, bad, err := l2.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -1, bad)
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)

	require.NoError(t, l.Log(Entry{RunID: "run-1", Gate: "preflight", Outcome: "pass"}))
	require.NoError(t, l.Log(Entry{RunID: "run-1", Gate: "execute", Outcome: "pass"}))

	// rewrite the outcome of the first record in place
	path := filepath.Join(dir, time.Now().Format("2006-01-02")+".jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var r Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &r))
	r.Outcome = "fail"
	tampered, err := json.Marshal(r)
	require.NoError(t, err)
	lines[0] = string(tampered)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))

	ok, bad, err := l.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, bad)
}

func TestForRun(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)

	require.NoError(t, l.Log(Entry{RunID: "run-a", Gate: "preflight", Outcome: "pass"}))
	require.NoError(t, l.Log(Entry{RunID: "run-b", Gate: "preflight", Outcome: "pass"}))
	require.NoError(t, l.Log(Entry{RunID: "run-a", Gate: "risk", Outcome: "pass"}))

	records, err := l.ForRun("run-a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "preflight", records[0].Gate)
	assert.Equal(t, "risk", records[1].Gate)
}

func TestInterleavedLoggersShareOneChain(t *testing.T) {
	dir := t.TempDir()
	a, err := NewLogger(dir)
	require.NoError(t, err)
	b, err := NewLogger(dir)
	require.NoError(t, err)

	// Two loggers over the same directory, as two concurrent runs would open.
	// Alternating appends must extend a single chain, not fork it at the tail
	// each logger saw at open time.
	require.NoError(t, a.Log(Entry{RunID: "run-a", Gate: "preflight", Outcome: "pass"}))
	require.NoError(t, b.Log(Entry{RunID: "run-b", Gate: "preflight", Outcome: "pass"}))
	require.NoError(t, a.Log(Entry{RunID: "run-a", Gate: "confirm", Outcome: "approved"}))
	require.NoError(t, b.Log(Entry{RunID: "run-b", Gate: "confirm", Outcome: "denied"}))

	ok, badIndex, err := a.Verify()
	require.NoError(t, err)
	assert.True(t, ok, "chain broken at record %d", badIndex)

	records, err := a.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 4)
	// newest first: each record links to the one logged before it, regardless
	// of which logger wrote it
	for i := 0; i < len(records)-1; i++ {
		assert.Equal(t, records[i+1].Hash, records[i].PrevHash)
	}
}

func TestIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.jsonl"), []byte("junk\n"), 0644))

	l, err := NewLogger(dir)
	require.NoError(t, err)
	require.NoError(t, l.Log(Entry{RunID: "run-1", Gate: "preflight", Outcome: "pass"}))

	ok, _, err := l.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}
