package runlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/stmtledger/internal/model"
)

var testTime = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func testEntry() Entry {
	return Entry{
		ImportRun: model.ImportRun{
			RunID:            "3f1c7f0e-0000-4000-8000-000000000001",
			StartedAt:        testTime,
			FinishedAt:       testTime.Add(2 * time.Second),
			Mode:             model.ModeApply,
			Status:           model.RunCompleted,
			SourceDocumentID: "jan.txt",
			AccountID:        "chk",
			Parsed:           12,
			Merged:           10,
			Duplicate:        2,
			Flagged:          1,
			BackupID:         "chk_20250115T103000Z",
		},
	}
}

func TestAppend_NewFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Append(dir, []Entry{testEntry()}))

	entries, err := Read(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "jan.txt", entries[0].SourceDocumentID)
}

func TestAppend_ExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Append(dir, []Entry{testEntry()}))

	e2 := testEntry()
	e2.Mode = model.ModeDryRun
	e2.AccountID = "sav"
	e2.BackupID = ""
	require.NoError(t, Append(dir, []Entry{e2}))

	entries, err := Read(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ModeApply, entries[0].Mode)
	assert.Equal(t, model.ModeDryRun, entries[1].Mode)

	assert.Len(t, ForAccount(entries, "sav"), 1)
	assert.Len(t, ForAccount(entries, ""), 2)
	assert.Empty(t, ForAccount(entries, "other"))
}

func TestMarshalUnmarshal(t *testing.T) {
	e := testEntry()
	e.Status = model.RunFailed
	e.Error = "jan.txt line 4: missing opening date"
	row := MarshalEntry(e)
	assert.Len(t, row, numFields)
	assert.Equal(t, "2025-01-15T10:30:00Z", row[colStartedAt])

	got, err := UnmarshalEntry(row)
	require.NoError(t, err)
	assert.True(t, e.StartedAt.Equal(got.StartedAt))
	assert.True(t, e.FinishedAt.Equal(got.FinishedAt))
	got.StartedAt, got.FinishedAt = e.StartedAt, e.FinishedAt
	assert.Equal(t, e, got)
}

func TestMarshal_OpenRun(t *testing.T) {
	e := testEntry()
	e.FinishedAt = time.Time{}
	e.Status = model.RunOpen
	row := MarshalEntry(e)
	assert.Empty(t, row[colFinishedAt])

	got, err := UnmarshalEntry(row)
	require.NoError(t, err)
	assert.True(t, got.FinishedAt.IsZero())
}

func TestUnmarshalEntry_Errors(t *testing.T) {
	_, err := UnmarshalEntry([]string{"one", "two"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 13 fields")

	row := MarshalEntry(testEntry())
	row[colMerged] = "ten"
	_, err = UnmarshalEntry(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing count")
}

func TestRead_NotFound(t *testing.T) {
	entries, err := Read(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestRead_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs"), 0o755))
	require.NoError(t, os.WriteFile(Path(dir), []byte(Header+"\n"), 0o644))

	entries, err := Read(dir)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestAppend_CreatesDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Append(dir, []Entry{testEntry()}))

	info, err := os.Stat(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
