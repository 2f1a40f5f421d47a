package transfer

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uploads.json")

	j, err := OpenJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(Task{VideoID: "b", UploadURL: "https://s3/b", SourcePath: "/tmp/b.mp4", Size: 10}))
	require.NoError(t, j.Record(Task{VideoID: "a", UploadURL: "https://s3/a", SourcePath: "/tmp/a.mp4", Size: 20}))
	require.NoError(t, j.MarkFailed("b", 3, errors.New("timeout")))
	require.NoError(t, j.MarkFailed("missing", 1, errors.New("ignored")))
	require.NoError(t, j.Close())

	j, err = OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	tasks := j.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].VideoID)
	assert.Equal(t, "b", tasks[1].VideoID)
	assert.Equal(t, 3, tasks[1].Attempts)
	assert.Equal(t, "timeout", tasks[1].LastError)
	assert.False(t, tasks[1].UpdatedAt.IsZero())

	require.NoError(t, j.Remove("a"))
	require.NoError(t, j.Remove("a"))
	assert.Len(t, j.Tasks(), 1)
}

func TestJournal_Nil(t *testing.T) {
	var j *Journal
	assert.NoError(t, j.Record(Task{VideoID: "x"}))
	assert.NoError(t, j.Remove("x"))
	assert.Nil(t, j.Tasks())
	assert.NoError(t, j.Close())
}
