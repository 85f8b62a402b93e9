package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqgen/internal/mockserver"
	"seqgen/internal/testutil"
)

func newClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(url, WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:5000", "ftp://host", "http://"} {
		_, err := New(raw)
		assert.Error(t, err, raw)
	}
}

func TestWithTimeoutLeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{}
	c, err := New("http://localhost:5000", WithHTTPClient(shared), WithTimeout(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), shared.Timeout)
	assert.Equal(t, 3*time.Second, c.http.Timeout)
}

func TestResolveURL(t *testing.T) {
	c, err := New("http://example.test:5000/app/")
	require.NoError(t, err)
	assert.Equal(t, "http://example.test:5000", c.Origin())
	assert.Equal(t, "http://example.test:5000/files/abc.xsq", c.ResolveURL("/files/abc.xsq"))
	assert.Equal(t, "https://cdn.test/x.xsq", c.ResolveURL("https://cdn.test/x.xsq"))
	assert.Equal(t, "", c.ResolveURL(" "))
}

func TestGenerateAgainstMockServer(t *testing.T) {
	srv := testutil.MockServer(t, mockserver.WithJobIDs(func() string { return "job1" }))
	c := newClient(t, srv.URL)
	files := testutil.Uploads(t)

	res, err := c.Generate(context.Background(), GenerateRequest{
		Files:        files,
		ManualBPM:    "128",
		ExportFormat: "xsq",
		Selection:    `["large_props"]`,
	})
	require.NoError(t, err)
	assert.Equal(t, "job1", res.JobID)
	assert.True(t, res.OK)
	require.NotNil(t, res.BPM)
	assert.Equal(t, 128.0, *res.BPM)
	require.NotNil(t, res.ManualBPM)
	require.NotNil(t, res.SelectedModelCount)
	assert.Equal(t, 2, *res.SelectedModelCount)
	assert.Equal(t, 7, *res.TotalModelCount)
	assert.Equal(t, 7, res.ModelCount)
	assert.Equal(t, "/files/job1.xsq", res.DownloadURL)

	data, err := c.Preview(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.Len(t, data.BeatTimes, res.BeatCount)
	assert.Len(t, data.Sections, res.SectionCount)

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), res.DownloadURL, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Contains(t, buf.String(), "<xsequence>")
}

func TestGenerateOmitsSelectionWhenEmpty(t *testing.T) {
	var gotField bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		_, gotField = r.MultipartForm.Value["selected_recommendations"]
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		assert.Equal(t, "text/xml", r.MultipartForm.File["layout"][0].Header.Get("Content-Type"))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "jobId": "x", "durationMs": 1000, "downloadUrl": "/files/x.xsq"})
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(t, srv.URL).Generate(context.Background(), GenerateRequest{Files: testutil.Uploads(t)})
	require.NoError(t, err)
	assert.False(t, gotField)
}

func TestApplicationErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error":"layout parse failed"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(t, srv.URL).Generate(context.Background(), GenerateRequest{Files: testutil.Uploads(t)})
	require.Error(t, err)
	assert.True(t, IsApplication(err))
	assert.EqualError(t, err, "layout parse failed")
}

func TestApplicationErrorFallsBackToUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(t, srv.URL).Generate(context.Background(), GenerateRequest{Files: testutil.Uploads(t)})
	assert.EqualError(t, err, "Unknown")
}

func TestTransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"html error page", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}},
		{"missing ok field", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"jobId":"x"}`))
		}},
		{"not json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("hello"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			t.Cleanup(srv.Close)
			_, err := newClient(t, srv.URL).Generate(context.Background(), GenerateRequest{Files: testutil.Uploads(t)})
			require.Error(t, err)
			assert.True(t, IsTransport(err))
			assert.Contains(t, err.Error(), "Network error: ")
		})
	}
}

func TestConnectionRefusedIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(t, url).Generate(context.Background(), GenerateRequest{Files: testutil.Uploads(t)})
	require.Error(t, err)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "generate", te.Op)
}

func TestGenerateRequiresFiles(t *testing.T) {
	c, err := New("http://localhost:1")
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), GenerateRequest{})
	require.Error(t, err)
	assert.False(t, IsTransport(err))
}

func TestAuxiliaryEndpointsAreDegraded(t *testing.T) {
	srv := testutil.MockServer(t)
	c := newClient(t, srv.URL)
	files := testutil.Uploads(t)
	ctx := context.Background()

	tree, err := c.InspectLayout(ctx, files.Layout)
	require.NoError(t, err)
	assert.Equal(t, "ROOT", tree.Name)
	assert.Len(t, tree.Children, 3)

	recs, err := c.RecommendGroups(ctx, files.Layout)
	require.NoError(t, err)
	assert.Equal(t, recs.Count, len(recs.Recommendations))
	assert.Equal(t, "arches", recs.Recommendations[0].Name)

	fig, err := c.RenderLayout(ctx, files.Layout)
	require.NoError(t, err)
	assert.Equal(t, 7, fig.TraceCount())

	_, err = c.Preview(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsDegraded(err))
	assert.True(t, IsApplication(err), "degraded errors keep their cause")

	bad := testutil.WriteFile(t, t.TempDir(), "bad.xml", []byte("not xml"))
	_, err = c.InspectLayout(ctx, bad)
	require.Error(t, err)
	assert.True(t, IsDegraded(err))
	assert.Contains(t, err.Error(), "layout inspection unavailable")
}

func TestDownloadFailureStatus(t *testing.T) {
	srv := testutil.MockServer(t)
	var buf bytes.Buffer
	_, err := newClient(t, srv.URL).Download(context.Background(), "/files/none.xsq", &buf)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Contains(t, err.Error(), "download failed (404)")
}
