package activities

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"goa.design/docchat/security"
)

func newDocEnv(t *testing.T, root string) (*testsuite.TestActivityEnvironment, *DocumentActivities) {
	t.Helper()
	validator, err := security.NewPathValidator(root)
	require.NoError(t, err)
	docs := NewDocumentActivities(validator, 10, 100)

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivityWithOptions(docs.ScanDirectory, activity.RegisterOptions{Name: ScanDirectoryName})
	env.RegisterActivityWithOptions(docs.ReadDocument, activity.RegisterOptions{Name: ReadDocumentName})
	return env, docs
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes.txt", "hello")
	writeFile(t, root, "guide.md", "# guide")
	writeFile(t, root, "data.csv", "a,b")
	writeFile(t, root, "image.png", "not admissible")
	writeFile(t, root, "nested/deep.json", `{"k":1}`)

	env, _ := newDocEnv(t, root)
	val, err := env.ExecuteActivity(ScanDirectoryName, ScanInput{Path: ""})
	require.NoError(t, err)
	var res ScanResult
	require.NoError(t, val.Get(&res))

	assert.ElementsMatch(t, []string{"notes.txt", "guide.md", "data.csv", filepath.Join("nested", "deep.json")}, res.Files)
	assert.Equal(t, 1, res.Skipped)
	assert.Positive(t, res.TotalBytes)
}

func TestScanDirectorySkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.txt", "ok")
	writeFile(t, root, "big.txt", strings.Repeat("x", 2<<20))

	validator, err := security.NewPathValidator(root)
	require.NoError(t, err)
	docs := NewDocumentActivities(validator, 1, 100)

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivityWithOptions(docs.ScanDirectory, activity.RegisterOptions{Name: ScanDirectoryName})

	val, err := env.ExecuteActivity(ScanDirectoryName, ScanInput{Path: "."})
	require.NoError(t, err)
	var res ScanResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, []string{"small.txt"}, res.Files)
	assert.Equal(t, 1, res.Skipped)
}

func TestScanDirectoryRejectsEscape(t *testing.T) {
	root := t.TempDir()
	env, _ := newDocEnv(t, root)
	_, err := env.ExecuteActivity(ScanDirectoryName, ScanInput{Path: "../outside"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path")
}

func TestReadDocument(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes.txt", "the cat sat on the mat")

	env, _ := newDocEnv(t, root)
	val, err := env.ExecuteActivity(ReadDocumentName, ReadInput{Path: "notes.txt"})
	require.NoError(t, err)
	var doc Document
	require.NoError(t, val.Get(&doc))

	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, "the cat sat on the mat", doc.Content)
	assert.Equal(t, int64(22), doc.SizeBytes)
	assert.Empty(t, doc.Error)
}

func TestReadDocumentMissingFile(t *testing.T) {
	root := t.TempDir()
	env, _ := newDocEnv(t, root)
	_, err := env.ExecuteActivity(ReadDocumentName, ReadInput{Path: "no-such.txt"})
	require.Error(t, err)
}

func TestReadDocumentBadPDF(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "broken.pdf", "this is not a pdf")

	env, _ := newDocEnv(t, root)
	val, err := env.ExecuteActivity(ReadDocumentName, ReadInput{Path: "broken.pdf"})
	require.NoError(t, err)
	var doc Document
	require.NoError(t, val.Get(&doc))
	assert.Contains(t, doc.Error, "pdf extraction failed")
	assert.Empty(t, doc.Content)
}
