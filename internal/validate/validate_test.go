package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mb = 1024 * 1024

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	return verr.Reason
}

func TestValidateSizeBoundary(t *testing.T) {
	allowed := DefaultAllowedMIME()
	maxBytes := DefaultMaxBytes

	exact := Files{
		Layout: &File{Name: "layout.xml", Size: maxBytes, Type: "text/xml"},
		Audio:  &File{Name: "song.mp3", Size: maxBytes, Type: "audio/mpeg"},
	}
	assert.NoError(t, Validate(exact, maxBytes, allowed))

	over := exact
	over.Audio = &File{Name: "song.mp3", Size: maxBytes + 1, Type: "audio/mpeg"}
	assert.Equal(t, "Files must be smaller than 25MB.", reasonOf(t, Validate(over, maxBytes, allowed)))

	networksOver := exact
	networksOver.Networks = &File{Name: "net.xml", Size: maxBytes + 1, Type: "application/xml"}
	assert.Equal(t, "Files must be smaller than 25MB.", reasonOf(t, Validate(networksOver, maxBytes, allowed)))
}

func TestValidateMIMEByRole(t *testing.T) {
	allowed := DefaultAllowedMIME()
	base := func() Files {
		return Files{
			Layout: &File{Name: "layout.xml", Size: 10, Type: "text/xml"},
			Audio:  &File{Name: "song.mp3", Size: 10, Type: "audio/mpeg"},
		}
	}

	for _, mime := range xmlTypes {
		f := base()
		f.Layout.Type = mime
		f.Networks = &File{Name: "n.xml", Size: 1, Type: mime}
		assert.NoError(t, Validate(f, DefaultMaxBytes, allowed), mime)
	}
	for _, mime := range audioTypes {
		f := base()
		f.Audio.Type = mime
		assert.NoError(t, Validate(f, DefaultMaxBytes, allowed), mime)
	}

	cases := []struct {
		name   string
		mutate func(*Files)
		want   string
	}{
		{"layout json", func(f *Files) { f.Layout.Type = "application/json" }, ReasonLayoutType},
		{"layout empty", func(f *Files) { f.Layout.Type = "" }, ReasonLayoutType},
		{"audio video", func(f *Files) { f.Audio.Type = "video/mp4" }, ReasonAudioType},
		{"audio ogg", func(f *Files) { f.Audio.Type = "audio/ogg" }, ReasonAudioType},
		{"networks text", func(f *Files) { f.Networks = &File{Name: "n.txt", Size: 1, Type: "text/plain"} }, ReasonNetworksType},
		{"missing layout", func(f *Files) { f.Layout = nil }, ReasonLayoutRequired},
		{"missing audio", func(f *Files) { f.Audio = nil }, ReasonAudioRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := base()
			tc.mutate(&f)
			assert.Equal(t, tc.want, reasonOf(t, Validate(f, DefaultMaxBytes, allowed)))
		})
	}
}

func TestValidateShortCircuitsOnSizeBeforeType(t *testing.T) {
	f := Files{
		Layout: &File{Name: "layout.json", Size: 30 * mb, Type: "application/json"},
		Audio:  &File{Name: "clip.mp4", Size: 1, Type: "video/mp4"},
	}
	assert.Equal(t, "Files must be smaller than 25MB.", reasonOf(t, Validate(f, DefaultMaxBytes, DefaultAllowedMIME())))
}

func TestValidateScenarios(t *testing.T) {
	allowed := DefaultAllowedMIME()

	t.Run("layout and audio pass without networks", func(t *testing.T) {
		f := Files{
			Layout: &File{Name: "layout.xml", Size: 2 * mb, Type: "text/xml"},
			Audio:  &File{Name: "song.mp3", Size: 10 * mb, Type: "audio/mpeg"},
		}
		assert.NoError(t, Validate(f, DefaultMaxBytes, allowed))
	})

	t.Run("30MB layout is rejected", func(t *testing.T) {
		f := Files{
			Layout: &File{Name: "layout.xml", Size: 30 * mb, Type: "text/xml"},
			Audio:  &File{Name: "song.mp3", Size: 10 * mb, Type: "audio/mpeg"},
		}
		assert.Equal(t, "Files must be smaller than 25MB.", reasonOf(t, Validate(f, DefaultMaxBytes, allowed)))
	})

	t.Run("video audio is rejected", func(t *testing.T) {
		f := Files{
			Layout: &File{Name: "layout.xml", Size: 1, Type: "text/xml"},
			Audio:  &File{Name: "clip.mp4", Size: 1, Type: "video/mp4"},
		}
		assert.Equal(t, "Unsupported audio file type.", reasonOf(t, Validate(f, DefaultMaxBytes, allowed)))
	})
}

func TestValidateIgnoresMIMEParameters(t *testing.T) {
	f := Files{
		Layout: &File{Name: "layout.xml", Size: 1, Type: "Text/XML; charset=utf-8"},
		Audio:  &File{Name: "song.wav", Size: 1, Type: "audio/x-wav"},
	}
	assert.NoError(t, Validate(f, DefaultMaxBytes, DefaultAllowedMIME()))
}

func TestStat(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "song.MP3")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	f, err := Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "song.MP3", f.Name)
	assert.Equal(t, int64(3), f.Size)
	assert.Equal(t, "audio/mpeg", f.Type)

	none, err := Stat("  ")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = Stat(filepath.Join(tmp, "missing.xml"))
	assert.Error(t, err)

	_, err = Stat(tmp)
	assert.Error(t, err)
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "text/xml", DetectMIME("/x/y/xlights_rgbeffects.xml"))
	assert.Equal(t, "audio/mp4", DetectMIME("track.m4a"))
	assert.Equal(t, "video/mp4", DetectMIME("clip.mp4"))
	assert.Equal(t, "application/octet-stream", DetectMIME("noext"))
}
