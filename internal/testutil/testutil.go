// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"seqgen/internal/mockserver"
	"seqgen/internal/validate"
)

// SampleLayout has two groups, one nested model family and a loose model.
const SampleLayout = `<?xml version="1.0"?>
<xrgb>
  <models>
    <model name="Arch-1" StringCount="1" Nodes="100"><node x="0" y="0"/><node x="1" y="1"/></model>
    <model name="Arch-2" StringCount="1" Nodes="100"/>
    <model name="MegaTree" StringCount="24" Nodes="1600"/>
    <model name="Matrix" StringCount="32" Nodes="2048"/>
    <model name="Star-1" strings="1" nodes="50"/>
    <model name="Star-2" strings="1" nodes="50"/>
    <model name="Garage"/>
  </models>
  <modelGroups>
    <modelGroup name="Yard" models="Arches,Stars"/>
    <modelGroup name="Arches" models="Arch-1,Arch-2"/>
    <modelGroup name="Stars" models="Star-1,Star-2"/>
    <modelGroup name="House" models="MegaTree,Matrix"/>
  </modelGroups>
</xrgb>
`

// NewTestLogger returns a logger that writes to t.Log().
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// WriteFile creates dir/name with content and returns it as an upload.
func WriteFile(t testing.TB, dir, name string, content []byte) *validate.File {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	f, err := validate.Stat(path)
	if err != nil {
		t.Fatalf("stat fixture %s: %v", name, err)
	}
	return f
}

// Uploads writes a layout and a small fake mp3 into a temp dir.
func Uploads(t testing.TB) validate.Files {
	t.Helper()
	dir := t.TempDir()
	return validate.Files{
		Layout: WriteFile(t, dir, "layout.xml", []byte(SampleLayout)),
		Audio:  WriteFile(t, dir, "song.mp3", []byte("ID3fake-audio")),
	}
}

// MockServer starts a mock generation server for the duration of the test.
func MockServer(t testing.TB, opts ...mockserver.Option) *httptest.Server {
	t.Helper()
	opts = append([]mockserver.Option{mockserver.WithLogger(NewTestLogger(t))}, opts...)
	srv := httptest.NewServer(mockserver.New(opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}
