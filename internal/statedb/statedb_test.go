package statedb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.CreateRun("run-1", 3))

	r, err := db.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", r.Status)
	assert.Equal(t, 3, r.TargetCount)
	assert.Empty(t, r.EndedAt)

	require.NoError(t, db.UpdateRun("run-1", "RUNNING", "MEDIUM"))
	r, err = db.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", r.Status)
	assert.Empty(t, r.EndedAt, "non-terminal status must not stamp ended_at")

	require.NoError(t, db.UpdateRun("run-1", "COMPLETED", "MEDIUM"))
	r, err = db.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", r.Status)
	assert.NotEmpty(t, r.EndedAt)
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetRun("ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	err = db.UpdateRun("ghost", "FAILED", "LOW")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackupRow(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateRun("run-1", 1))

	row := BackupRow{ID: "bk-1", RunID: "run-1", CreatedAt: "2026-01-01T00:00:00Z", RetentionDays: 30, Bytes: 1024}
	require.NoError(t, db.RecordBackup(row))

	got, err := db.BackupForRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, row, got)

	_, err = db.BackupForRun("run-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStepsAppendOnly(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateRun("run-1", 1))

	s1 := StepRow{RunID: "run-1", Seq: 1, Description: "backup verified", Status: "SUCCESS",
		StartedAt: "2026-01-01T00:00:00Z", EndedAt: "2026-01-01T00:00:01Z"}
	s2 := StepRow{RunID: "run-1", Seq: 2, Description: "delete /tmp/a.txt", Status: "FAILED", Error: "EACCES",
		StartedAt: "2026-01-01T00:00:01Z", EndedAt: "2026-01-01T00:00:02Z"}
	require.NoError(t, db.AppendStep(s1))
	require.NoError(t, db.AppendStep(s2))

	// rewriting an existing sequence number is rejected
	assert.Error(t, db.AppendStep(StepRow{RunID: "run-1", Seq: 1, Description: "tamper", Status: "SUCCESS",
		StartedAt: "x", EndedAt: "y"}))

	steps, err := db.StepsForRun("run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "backup verified", steps[0].Description)
	assert.Equal(t, "FAILED", steps[1].Status)
	assert.Equal(t, "EACCES", steps[1].Error)
}

func TestRecentRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CreateRun("run-1", 1))
	require.NoError(t, db.CreateRun("run-2", 2))

	runs, err := db.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}
