package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const DefaultMaxBytes int64 = 25 * 1024 * 1024

// File is one upload candidate as the form sees it: a name, a byte size and
// the declared MIME type.
type File struct {
	Path string
	Name string
	Size int64
	Type string
}

type Files struct {
	Layout   *File
	Audio    *File
	Networks *File
}

type AllowedMIME struct {
	Layout   map[string]bool
	Audio    map[string]bool
	Networks map[string]bool
}

// Error is a validation failure carrying the user-facing reason.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

const (
	ReasonLayoutRequired   = "Layout file is required."
	ReasonAudioRequired    = "Audio file is required."
	ReasonLayoutType       = "Unsupported layout file type."
	ReasonAudioType        = "Unsupported audio file type."
	ReasonNetworksType     = "Unsupported networks file type."
	reasonTooLargeTemplate = "Files must be smaller than %dMB."
)

var xmlTypes = []string{"text/xml", "application/xml"}

var audioTypes = []string{"audio/mpeg", "audio/wav", "audio/x-wav", "audio/aac", "audio/m4a", "audio/mp4"}

func DefaultAllowedMIME() AllowedMIME {
	return AllowedMIME{
		Layout:   setOf(xmlTypes...),
		Audio:    setOf(audioTypes...),
		Networks: setOf(xmlTypes...),
	}
}

// Validate runs the checks in order and stops at the first failure:
// presence, size, layout type, audio type, networks type.
func Validate(files Files, maxBytes int64, allowed AllowedMIME) error {
	if files.Layout == nil {
		return &Error{Reason: ReasonLayoutRequired}
	}
	if files.Audio == nil {
		return &Error{Reason: ReasonAudioRequired}
	}

	for _, f := range []*File{files.Layout, files.Audio, files.Networks} {
		if f == nil {
			continue
		}
		if f.Size > maxBytes {
			return &Error{Reason: TooLargeReason(maxBytes)}
		}
	}

	if !allowed.Layout[normalizeType(files.Layout.Type)] {
		return &Error{Reason: ReasonLayoutType}
	}
	if !allowed.Audio[normalizeType(files.Audio.Type)] {
		return &Error{Reason: ReasonAudioType}
	}
	if files.Networks != nil && !allowed.Networks[normalizeType(files.Networks.Type)] {
		return &Error{Reason: ReasonNetworksType}
	}
	return nil
}

func TooLargeReason(maxBytes int64) string {
	return fmt.Sprintf(reasonTooLargeTemplate, maxBytes/(1024*1024))
}

// Stat builds a File from a path on disk. An empty path yields nil so that
// optional inputs stay absent rather than failing.
func Stat(path string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &File{
		Path: path,
		Name: filepath.Base(path),
		Size: info.Size(),
		Type: DetectMIME(path),
	}, nil
}

func setOf(values ...string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

// normalizeType lowercases a media type and drops parameters such as
// charset before the allowed-set lookup.
func normalizeType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(t, ";"); idx >= 0 {
		t = strings.TrimSpace(t[:idx])
	}
	return t
}
