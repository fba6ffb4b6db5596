package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestInit(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	require.NoError(t, Init(context.Background(), dir))

	_, err := os.Stat(filepath.Join(dir, ".git"))
	require.NoError(t, err, ".git directory should exist")
}

func TestIsRepo(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	assert.False(t, IsRepo(dir), "empty dir should not be a repo")

	require.NoError(t, Init(context.Background(), dir))
	assert.True(t, IsRepo(dir), "initialized dir should be a repo")
}

func TestImportMessage(t *testing.T) {
	assert.Equal(t, "import: jan.txt (+12)", ImportMessage([]string{"jan.txt"}, 12))
	assert.Equal(t, "import: jan.txt, feb.txt (+0)", ImportMessage([]string{"jan.txt", "feb.txt"}, 0))
}

func TestCommitAll(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, Init(ctx, dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledger.csv"), []byte("hello"), 0o644))

	c := &Committer{Dir: dir, AuthorName: "Test Author", AuthorEmail: "test@example.com"}
	hash, err := c.CommitAll(ctx, "import: jan.txt (+1)")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	log := exec.Command("git", "log", "--format=%s|%an <%ae>", "-1")
	log.Dir = dir
	out, err := log.Output()
	require.NoError(t, err)
	assert.Contains(t, string(out), "import: jan.txt (+1)|Test Author <test@example.com>")
}

func TestCommitAll_NothingToCommit(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, Init(ctx, dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	c := &Committer{Dir: dir, AuthorName: "Test", AuthorEmail: "test@example.com"}
	_, err := c.CommitAll(ctx, "first")
	require.NoError(t, err)

	hash, err := c.CommitAll(ctx, "second")
	require.NoError(t, err)
	assert.Empty(t, hash)
}
