package cli

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
)

const (
	fieldLayout   = "layout"
	fieldAudio    = "audio"
	fieldNetworks = "networks"
	fieldBPM      = "manual_bpm"
	fieldFormat   = "export_format"
)

type studioFormField struct {
	Key      string
	Label    string
	Help     string
	Value    string
	Required bool
}

// studioForm is the upload form. One text input edits whichever field is
// current; values are committed when the cursor leaves a field.
type studioForm struct {
	Fields []studioFormField
	Index  int
	Input  textinput.Model
}

func newStudioForm(exportFormat string, width int) *studioForm {
	f := &studioForm{
		Fields: []studioFormField{
			{Key: fieldLayout, Label: "Layout", Help: "xlights_rgbeffects.xml; enter loads the model tree", Required: true},
			{Key: fieldAudio, Label: "Audio", Help: "mp3, wav, ogg, m4a or flac", Required: true},
			{Key: fieldNetworks, Label: "Networks", Help: "Optional xlights_networks.xml"},
			{Key: fieldBPM, Label: "Manual BPM", Help: "Leave empty to detect the tempo"},
			{Key: fieldFormat, Label: "Export Format", Help: "Sequence format the server should produce", Value: exportFormat},
		},
	}
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 1024
	input.Width = clampInt(width-8, 20, 120)
	f.Input = input
	f.loadFieldIntoInput()
	f.Input.Focus()
	return f
}

func (f *studioForm) currentField() studioFormField {
	if len(f.Fields) == 0 {
		return studioFormField{}
	}
	f.Index = clampInt(f.Index, 0, len(f.Fields)-1)
	return f.Fields[f.Index]
}

func (f *studioForm) commitInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	f.Fields[f.Index].Value = strings.TrimSpace(f.Input.Value())
}

func (f *studioForm) loadFieldIntoInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	f.Input.SetValue(f.Fields[f.Index].Value)
	f.Input.CursorEnd()
}

func (f *studioForm) move(delta int) {
	f.commitInput()
	f.Index = clampInt(f.Index+delta, 0, len(f.Fields)-1)
	f.loadFieldIntoInput()
}

func (f *studioForm) value(key string) string {
	for i, field := range f.Fields {
		if field.Key != key {
			continue
		}
		if i == f.Index {
			return strings.TrimSpace(f.Input.Value())
		}
		return field.Value
	}
	return ""
}

func (f *studioForm) set(key, value string) {
	for i := range f.Fields {
		if f.Fields[i].Key == key {
			f.Fields[i].Value = value
			if i == f.Index {
				f.loadFieldIntoInput()
			}
			return
		}
	}
}

func (f *studioForm) resize(width int) {
	f.Input.Width = clampInt(width-8, 20, 120)
}
