package validate

import (
	"path/filepath"
	"strings"
)

// extension -> MIME type the way browsers declare uploads. Content sniffing
// would report XML as text/plain or with charset parameters, which the
// server does not expect.
var extensionTypes = map[string]string{
	".xml":  "text/xml",
	".xsq":  "text/xml",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".json": "application/json",
	".txt":  "text/plain",
}

func DetectMIME(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return "application/octet-stream"
}
