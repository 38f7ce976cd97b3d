package export

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("validExport", func(t *testing.T) {
		path := filepath.Join(dir, "export.json")
		payload := `{
			"Video": {
				"Videos": {
					"VideoList": [
						{"Link": "https://cdn.example.com/a.mp4", "Date": "2023-05-01 10:00:00"}
					]
				}
			}
		}`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0644))

		exp, err := Load(path)
		require.NoError(t, err)
		require.Len(t, exp.Video.Videos.VideoList, 1)
		assert.Equal(t, "https://cdn.example.com/a.mp4", exp.Video.Videos.VideoList[0].Link)
	})

	t.Run("missingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.json"))
		assert.Error(t, err)
	})

	t.Run("malformedJSON", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missingNestingYieldsNoEntries", func(t *testing.T) {
		path := filepath.Join(dir, "other.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"Profile": {}}`), 0644))

		exp, err := Load(path)
		require.NoError(t, err)
		assert.Empty(t, Extract(exp, discardLogger()))
	})
}

func TestExtractDeduplicates(t *testing.T) {
	exp := &Export{Video: VideoSection{Videos: VideoArchive{VideoList: []Entry{
		{Link: "https://cdn.example.com/a.mp4", Date: "2023-05-01 10:00:00"},
		{Link: "https://cdn.example.com/a.mp4", Date: "2023-06-01 10:00:00"},
		{Link: "https://cdn.example.com/b.mp4", Date: "2023-04-01 10:00:00"},
	}}}}

	tasks := Extract(exp, discardLogger())

	require.Len(t, tasks, 2)
	// First occurrence wins, keeping its own metadata.
	for _, task := range tasks {
		if task.URL == "https://cdn.example.com/a.mp4" {
			assert.Equal(t, "2023-05-01 10:00:00", task.Timestamp)
		}
	}
}

func TestExtractSplitsMultiLineLinks(t *testing.T) {
	exp := &Export{Video: VideoSection{Videos: VideoArchive{VideoList: []Entry{
		{Link: "https://cdn.example.com/a.jpg\n https://cdn.example.com/b.jpg \n\n", Date: "2023-05-01 10:00:00"},
	}}}}

	tasks := Extract(exp, discardLogger())

	require.Len(t, tasks, 2)
	assert.Equal(t, "https://cdn.example.com/a.jpg", tasks[0].URL)
	assert.Equal(t, "https://cdn.example.com/b.jpg", tasks[1].URL)
	for _, task := range tasks {
		assert.Equal(t, "2023-05-01 10:00:00", task.Timestamp)
		assert.Equal(t, CategoryPosted, task.Category)
		assert.True(t, task.IsPrimary)
	}
}

func TestExtractSkipsEmptyLinks(t *testing.T) {
	exp := &Export{Video: VideoSection{Videos: VideoArchive{VideoList: []Entry{
		{Link: "", Date: "2023-05-01 10:00:00"},
		{Link: "   \n  ", Date: "2023-05-02 10:00:00"},
		{Link: "https://cdn.example.com/a.mp4", Date: "2023-05-03 10:00:00"},
	}}}}

	tasks := Extract(exp, discardLogger())

	require.Len(t, tasks, 1)
	assert.Equal(t, "https://cdn.example.com/a.mp4", tasks[0].URL)
}

func TestExtractSortsNewestFirst(t *testing.T) {
	exp := &Export{Video: VideoSection{Videos: VideoArchive{VideoList: []Entry{
		{Link: "https://cdn.example.com/old.mp4", Date: "2022-01-01 08:00:00"},
		{Link: "https://cdn.example.com/undated.mp4", Date: ""},
		{Link: "https://cdn.example.com/new.mp4", Date: "2023-12-31 23:59:59"},
		{Link: "https://cdn.example.com/mid.mp4", Date: "2023-06-15 12:00:00"},
	}}}}

	tasks := Extract(exp, discardLogger())

	require.Len(t, tasks, 4)
	got := make([]string, len(tasks))
	for i, task := range tasks {
		got[i] = task.URL
	}
	assert.Equal(t, []string{
		"https://cdn.example.com/new.mp4",
		"https://cdn.example.com/mid.mp4",
		"https://cdn.example.com/old.mp4",
		"https://cdn.example.com/undated.mp4",
	}, got)
}
