// internal/storage/file_storage_test.go
package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/PolyglotRunner/internal/errors"
)

type record struct {
	ID    string   `json:"id"`
	Lines []string `json:"lines"`
}

func TestFileStorageJSONRoundTrip(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	in := record{ID: "a", Lines: []string{"one", "two"}}
	require.NoError(t, fs.SaveJSONFile("runs", "a.json", in))
	assert.True(t, fs.FileExists("runs", "a.json"))

	var out record
	require.NoError(t, fs.LoadJSONFile("runs", "a.json", &out))
	assert.Equal(t, in, out)

	_, err = os.Stat(filepath.Join(fs.BaseDir, "runs", "a.json.tmp"))
	assert.True(t, os.IsNotExist(err), "临时文件应被重命名")
}

func TestFileStorageOverwriteInvalidatesCache(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.SaveFile("", "doc.txt", []byte("v1")))
	data, err := fs.LoadFile("", "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	require.NoError(t, fs.SaveFile("", "doc.txt", []byte("v2")))
	data, err = fs.LoadFile("", "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestFileStorageNotFoundAndTraversal(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	_, err = fs.LoadFile("runs", "missing.json")
	assert.True(t, apperrors.IsNotFoundError(err))
	assert.True(t, apperrors.IsNotFoundError(fs.DeleteFile("runs", "missing.json")))

	_, err = fs.LoadFile("runs", "../../etc/passwd")
	assert.True(t, apperrors.IsValidationError(err))
	_, err = fs.LoadFile("../..", "passwd")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestFileStorageListFiles(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	files, err := fs.ListFiles("runs", ".json")
	require.NoError(t, err)
	assert.Empty(t, files, "目录不存在时为空")

	require.NoError(t, fs.SaveFile("runs", "a.json", []byte("{}")))
	require.NoError(t, fs.SaveFile("runs", "b.json", []byte("{}")))
	require.NoError(t, fs.SaveFile("runs", "notes.txt", []byte("x")))

	files, err = fs.ListFiles("runs", ".json")
	require.NoError(t, err)
	names := []string{}
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"a.json", "b.json"}, names)

	require.NoError(t, fs.DeleteFile("runs", "a.json"))
	assert.False(t, fs.FileExists("runs", "a.json"))
}
