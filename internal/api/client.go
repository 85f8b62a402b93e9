// Package api talks to the sequence generation server. Every endpoint
// answers JSON with a mandatory ok field.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"seqgen/internal/layout"
	"seqgen/internal/preview"
	"seqgen/internal/validate"
)

const (
	RequestIDHeader = "X-Request-ID"
	maxResponseBody = 32 << 20
	maxErrorBody    = 4096
)

type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request. Zero leaves requests unbounded. The
// client is copied so one passed via WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(serverURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must use http or https", serverURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("server url %q has no host", serverURL)
	}
	c := &Client{
		base:   base,
		http:   &http.Client{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Origin is scheme://host of the server.
func (c *Client) Origin() string {
	return (&url.URL{Scheme: c.base.Scheme, Host: c.base.Host}).String()
}

// ResolveURL turns a server-relative reference such as /files/abc.xsq into
// an absolute URL. Absolute references are returned unchanged.
func (c *Client) ResolveURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return c.Origin() + ref
	}
	return c.base.ResolveReference(u).String()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*JobResult, error) {
	if req.Files.Layout == nil || req.Files.Audio == nil {
		return nil, errors.New("generate requires layout and audio files")
	}
	fields := map[string]string{}
	if v := strings.TrimSpace(req.ManualBPM); v != "" {
		fields["manual_bpm"] = v
	}
	if v := strings.TrimSpace(req.ExportFormat); v != "" {
		fields["export_format"] = v
	}
	if req.Selection != "" {
		fields["selected_recommendations"] = req.Selection
	}
	files := []formFile{
		{field: "layout", file: req.Files.Layout},
		{field: "audio", file: req.Files.Audio},
	}
	if req.Files.Networks != nil {
		files = append(files, formFile{field: "networks", file: req.Files.Networks})
	}

	var out JobResult
	if err := c.postMultipart(ctx, "generate", "/generate", fields, files, &out); err != nil {
		return nil, err
	}
	out.OK = true
	return &out, nil
}

func (c *Client) Preview(ctx context.Context, jobID string) (*preview.Data, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, degrade("preview", errors.New("job id is required"))
	}
	var out preview.Data
	if err := c.getJSON(ctx, "preview", c.endpoint("/preview.json", url.Values{"job": {jobID}}), &out); err != nil {
		return nil, degrade("preview", err)
	}
	out.OK = true
	return &out, nil
}

func (c *Client) InspectLayout(ctx context.Context, file *validate.File) (*layout.Node, error) {
	var out inspectResponse
	if err := c.postMultipart(ctx, "inspect-layout", "/inspect-layout", nil, []formFile{{field: "layout", file: file}}, &out); err != nil {
		return nil, degrade("layout inspection", err)
	}
	if out.Tree == nil {
		return nil, degrade("layout inspection", errors.New("response has no tree"))
	}
	return out.Tree, nil
}

func (c *Client) RecommendGroups(ctx context.Context, file *validate.File) (*RecommendResponse, error) {
	var out RecommendResponse
	if err := c.postMultipart(ctx, "recommend-groups", "/recommend-groups", nil, []formFile{{field: "layout", file: file}}, &out); err != nil {
		return nil, degrade("recommendations", err)
	}
	return &out, nil
}

func (c *Client) RenderLayout(ctx context.Context, file *validate.File) (*Figure, error) {
	var out renderResponse
	if err := c.postMultipart(ctx, "render-layout", "/render-layout", nil, []formFile{{field: "layout", file: file}}, &out); err != nil {
		return nil, degrade("layout chart", err)
	}
	if out.Figure == nil {
		return nil, degrade("layout chart", errors.New("response has no figure"))
	}
	return out.Figure, nil
}

// Download streams the file behind downloadURL into w.
func (c *Client) Download(ctx context.Context, downloadURL string, w io.Writer) (int64, error) {
	target := c.ResolveURL(downloadURL)
	if target == "" {
		return 0, errors.New("download url is required")
	}
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.do("download", req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &TransportError{Op: "download", Err: fmt.Errorf("download failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &TransportError{Op: "download", Err: err}
	}
	return n, nil
}

type formFile struct {
	field string
	file  *validate.File
}

func (c *Client) postMultipart(ctx context.Context, op, path string, fields map[string]string, files []formFile, out any) error {
	for _, f := range files {
		if f.file == nil {
			return fmt.Errorf("%s: %s file is required", op, f.field)
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, fields, files))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(path, nil), pr)
	if err != nil {
		_ = pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(op, req)
	if err != nil {
		_ = pr.Close()
		return err
	}
	defer resp.Body.Close()
	return c.decode(op, resp, out)
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, files []formFile) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	for _, f := range files {
		if err := writeFilePart(mw, f); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFilePart(mw *multipart.Writer, f formFile) error {
	src, err := os.Open(f.file.Path)
	if err != nil {
		return fmt.Errorf("open %s file: %w", f.field, err)
	}
	defer src.Close()

	name := f.file.Name
	if name == "" {
		name = "upload"
	}
	ctype := f.file.Type
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, name))
	h.Set("Content-Type", ctype)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", f.field, err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy %s file: %w", f.field, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, target string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decode(op, resp, out)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "seqgen")
	return req, nil
}

func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	id := req.Header.Get(RequestIDHeader)
	c.logger.Debug("http request", "op", op, "method", req.Method, "path", req.URL.Path, "request_id", id)
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("http request failed", "op", op, "request_id", id, "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}
	return resp, nil
}

// decode reads the envelope first. ok:false becomes an ApplicationError even
// on a non-2xx status; anything that is not a JSON envelope is a transport
// failure.
func (c *Client) decode(op string, resp *http.Response, out any) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	var env envelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr != nil || env.OK == nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet := string(body)
			if len(snippet) > maxErrorBody {
				snippet = snippet[:maxErrorBody]
			}
			return &TransportError{Op: op, Err: fmt.Errorf("request rejected (%d): %s", resp.StatusCode, strings.TrimSpace(snippet))}
		}
		if jsonErr == nil {
			jsonErr = errors.New(`missing "ok" field`)
		}
		return &TransportError{Op: op, Err: fmt.Errorf("malformed response: %w", jsonErr)}
	}
	if !*env.OK {
		c.logger.Warn("server reported failure", "op", op, "status", resp.StatusCode, "error", env.Error)
		return &ApplicationError{Op: op, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return nil
}
