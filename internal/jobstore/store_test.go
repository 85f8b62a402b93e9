package jobstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqgen/internal/api"
)

func fixedStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := fixedStore(t)
	_, err := s.Latest()
	require.ErrorIs(t, err, ErrNoJobs)

	first, err := s.Save("http://localhost:5000", "http://localhost:5000/files/a.xsq", api.JobResult{JobID: "a", ExportFormat: "xsq"})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:00:00Z", first.SavedAt)
	_, err = s.Save("http://localhost:5000", "http://localhost:5000/files/b.xsq", api.JobResult{JobID: "b", BeatCount: 4})
	require.NoError(t, err)

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, "b", latest.Result.JobID)
	assert.Equal(t, 4, latest.Result.BeatCount)

	rec, err := s.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/files/a.xsq", rec.DownloadURL)

	rec, err = s.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "b", rec.Result.JobID)
}

func TestRejectsUnsafeJobIDs(t *testing.T) {
	s := fixedStore(t)
	_, err := s.Save("", "", api.JobResult{JobID: "../escape"})
	require.Error(t, err)
	_, err = s.Load("a/b")
	require.Error(t, err)
}

func TestDownloadName(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{"from url", Record{DownloadURL: "http://h/files/abc.xsq?x=1", Result: api.JobResult{JobID: "abc"}}, "abc.xsq"},
		{"fallback format", Record{Result: api.JobResult{JobID: "abc", ExportFormat: "fseq"}}, "abc.fseq"},
		{"fallback default", Record{DownloadURL: "http://h/", Result: api.JobResult{JobID: "abc"}}, "abc.xsq"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DownloadName(tt.rec))
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSaveDownloadIsAtomic(t *testing.T) {
	dir := t.TempDir()
	rec := Record{Result: api.JobResult{JobID: "abc", ExportFormat: "xsq"}}

	path, n, err := SaveDownload(dir, rec, strings.NewReader("<xsequence/>"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc.xsq"), path)
	assert.Equal(t, int64(12), n)

	_, _, err = SaveDownload(dir, rec, failingReader{})
	require.Error(t, err)
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "<xsequence/>", string(data), "failed download keeps the previous file")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")
}
