package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

func TestIndexCmd_Folder(t *testing.T) {
	// Given: a folder with two supported files and one unsupported file
	project := newProject(t)
	writeFile(t, project, "docs/a.txt", "vector databases store embeddings")
	writeFile(t, project, "docs/b.md", "# Meeting notes\n\nquarterly planning")
	writeFile(t, project, "docs/logo.png", "\x89PNG")

	// When: indexing the folder
	stdout, _, err := runCLI(t, project, "", "index", "docs", "--no-tui")

	// Then: both documents are indexed
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 new/modified files, 0 unchanged")
	assert.Contains(t, stdout, "Embedder: static")

	count, _, err := runCLI(t, project, "", "count")
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(count))
}

func TestIndexCmd_FolderTwiceSkipsUnchanged(t *testing.T) {
	project := newProject(t)
	writeFile(t, project, "a.txt", "alpha")
	writeFile(t, project, "b.txt", "beta")

	_, _, err := runCLI(t, project, "", "index", ".", "--no-tui")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, project, "", "index", ".", "--no-tui")

	require.NoError(t, err)
	assert.Contains(t, stdout, "0 new/modified files, 2 unchanged")
}

func TestIndexCmd_Prune(t *testing.T) {
	// Given: an indexed folder where one file was since deleted
	project := newProject(t)
	writeFile(t, project, "keep.txt", "keep me")
	gone := writeFile(t, project, "gone.txt", "delete me")

	_, _, err := runCLI(t, project, "", "index", ".", "--no-tui")
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))

	// When: re-indexing with --prune
	stdout, _, err := runCLI(t, project, "", "index", ".", "--no-tui", "--prune")

	// Then: the stale record is removed
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 pruned")

	count, _, err := runCLI(t, project, "", "count")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(count))
}

func TestIndexCmd_SingleFile(t *testing.T) {
	project := newProject(t)
	path := writeFile(t, project, "note.txt", "a single note")

	stdout, _, err := runCLI(t, project, "", "index", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Indexed "+path)

	stdout, _, err = runCLI(t, project, "", "index", "note.txt")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Unchanged "+path)
}

func TestIndexCmd_ExtractionFailureIsNotFatal(t *testing.T) {
	// Given: a malformed JSON file
	project := newProject(t)
	writeFile(t, project, "broken.json", "{not json")

	// When: indexing it
	stdout, stderr, err := runCLI(t, project, "", "index", "broken.json")

	// Then: the failure is reported, the command succeeds, nothing is stored
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Indexed")
	assert.Contains(t, stderr, "Error reading JSON")
	assert.Contains(t, stderr, amerrors.ErrCodeExtractionFailed)

	count, _, err := runCLI(t, project, "", "count")
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(count))
}

func TestIndexCmd_FolderReportsFailedFiles(t *testing.T) {
	project := newProject(t)
	writeFile(t, project, "ok.txt", "fine")
	writeFile(t, project, "broken.json", "[1, 2")

	stdout, _, err := runCLI(t, project, "", "index", ".", "--no-tui")

	require.NoError(t, err)
	assert.Contains(t, stdout, "1 new/modified files, 0 unchanged, 1 failed")
	assert.Contains(t, stdout, filepath.Join(project, "broken.json"))
}

func TestIndexCmd_MissingPath(t *testing.T) {
	project := newProject(t)

	_, _, err := runCLI(t, project, "", "index", "nope")

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeFileNotFound, amerrors.GetCode(err))
}

func TestIndexCmd_RequiresPath(t *testing.T) {
	project := newProject(t)

	_, _, err := runCLI(t, project, "", "index")

	assert.Error(t, err)
}

func TestResolveTarget(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "proj")

	assert.Equal(t, filepath.Join(root, "docs"), resolveTarget(root, "docs"))
	assert.Equal(t, filepath.Join(root, "docs"), resolveTarget(root, "./docs/"))
	assert.Equal(t, filepath.Join(string(filepath.Separator), "abs", "x.txt"),
		resolveTarget(root, filepath.Join(string(filepath.Separator), "abs", "x.txt")))
}
