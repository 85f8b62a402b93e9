// Package jobstore keeps a local record of submitted jobs under the state
// directory and writes downloaded sequence files.
package jobstore

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"seqgen/internal/api"
)

const (
	jobsDirName    = "jobs"
	latestFileName = "latest.json"
)

// ErrNoJobs is returned by Latest when nothing has been recorded yet.
var ErrNoJobs = errors.New("no recorded jobs")

var safeJobID = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

type Record struct {
	SavedAt     string        `json:"saved_at"`
	ServerURL   string        `json:"server_url"`
	DownloadURL string        `json:"download_url"`
	Result      api.JobResult `json:"result"`
}

type Store struct {
	dir string
	now func() time.Time
}

func New(stateDir string) (*Store, error) {
	dir := strings.TrimSpace(stateDir)
	if dir == "" {
		return nil, errors.New("state directory is required")
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) JobPath(jobID string) string {
	return filepath.Join(s.dir, jobsDirName, jobID+".json")
}

func (s *Store) LatestPath() string {
	return filepath.Join(s.dir, latestFileName)
}

// Save records res as both its own job file and the latest job.
func (s *Store) Save(serverURL, downloadURL string, res api.JobResult) (Record, error) {
	if !safeJobID.MatchString(res.JobID) {
		return Record{}, fmt.Errorf("refusing to store job with id %q", res.JobID)
	}
	rec := Record{
		SavedAt:     s.now().UTC().Format(time.RFC3339),
		ServerURL:   serverURL,
		DownloadURL: downloadURL,
		Result:      res,
	}
	if err := WriteJSON(s.JobPath(res.JobID), rec); err != nil {
		return Record{}, err
	}
	if err := WriteJSON(s.LatestPath(), rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Store) Load(jobID string) (Record, error) {
	jobID = strings.TrimSpace(jobID)
	if !safeJobID.MatchString(jobID) {
		return Record{}, fmt.Errorf("invalid job id %q", jobID)
	}
	var rec Record
	if err := ReadJSON(s.JobPath(jobID), &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Store) Latest() (Record, error) {
	var rec Record
	if err := ReadJSON(s.LatestPath(), &rec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, ErrNoJobs
		}
		return Record{}, err
	}
	return rec, nil
}

// Resolve returns the record for jobID, or the latest record when jobID is
// empty.
func (s *Store) Resolve(jobID string) (Record, error) {
	if strings.TrimSpace(jobID) == "" {
		return s.Latest()
	}
	return s.Load(jobID)
}

// DownloadName picks the local file name for a download URL, falling back
// to {jobId}.{exportFormat}.
func DownloadName(rec Record) string {
	if u, err := url.Parse(strings.TrimSpace(rec.DownloadURL)); err == nil && u.Path != "" {
		if base := path.Base(u.Path); base != "/" && base != "." && safeJobID.MatchString(base) {
			return base
		}
	}
	format := strings.TrimSpace(rec.Result.ExportFormat)
	if format == "" {
		format = "xsq"
	}
	return rec.Result.JobID + "." + format
}

// SaveDownload streams r into dir under the record's download name.
func SaveDownload(dir string, rec Record, r io.Reader) (string, int64, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	target := filepath.Join(dir, DownloadName(rec))
	n, err := WriteStream(target, r)
	if err != nil {
		return "", 0, err
	}
	return target, n, nil
}
