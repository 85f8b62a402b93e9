package recommend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []Recommendation {
	return []Recommendation{
		{Name: "Arches", Reason: "keyword match", Members: []string{"Arch-1", "Arch-2"}},
		{Name: "Large Props", Reason: "high node count", Members: []string{"Mega", "Matrix"}},
		{Name: "Stars", Reason: "keyword match", Members: []string{"Star-1", "Star-2"}},
	}
}

func TestSelectorDefaultsToAllChecked(t *testing.T) {
	s := NewSelector()
	require.True(t, s.Apply(s.Begin(), sample()))
	assert.Equal(t, StateLoaded, s.State())
	assert.Equal(t, []string{"Arches", "Large Props", "Stars"}, s.CurrentSelection())

	payload, ok := s.Payload()
	require.True(t, ok)
	assert.Equal(t, `["Arches","Large Props","Stars"]`, payload)
}

func TestSelectorUncheckRemovesFromPayload(t *testing.T) {
	s := NewSelector()
	s.Apply(s.Begin(), sample())

	require.True(t, s.Toggle(1))
	assert.Equal(t, []string{"Arches", "Stars"}, s.CurrentSelection())

	s.Toggle(0)
	s.Toggle(2)
	payload, ok := s.Payload()
	require.True(t, ok)
	assert.Equal(t, `[]`, payload)

	s.Toggle(2)
	assert.Equal(t, []string{"Stars"}, s.CurrentSelection())
	assert.False(t, s.Toggle(7))
}

func TestSelectorPayloadOmittedUnlessLoaded(t *testing.T) {
	s := NewSelector()
	_, ok := s.Payload()
	assert.False(t, ok, "never fetched")

	tok := s.Begin()
	_, ok = s.Payload()
	assert.False(t, ok, "loading")

	s.Apply(tok, nil)
	assert.Equal(t, StateEmpty, s.State())
	_, ok = s.Payload()
	assert.False(t, ok, "no suggestions")

	tok = s.Begin()
	s.Fail(tok, errors.New("boom"))
	assert.Equal(t, StateFailed, s.State())
	assert.EqualError(t, s.Err(), "boom")
	_, ok = s.Payload()
	assert.False(t, ok, "failed fetch")
}

func TestSelectorDiscardsStaleFetch(t *testing.T) {
	s := NewSelector()
	old := s.Begin()
	latest := s.Begin()

	assert.False(t, s.Apply(old, sample()))
	assert.Equal(t, StateLoading, s.State())
	require.True(t, s.Apply(latest, sample()[:1]))
	assert.Equal(t, []string{"Arches"}, s.CurrentSelection())

	s.Reset()
	assert.Equal(t, StateNotFetched, s.State())
	assert.False(t, s.Fail(latest, errors.New("late")))
}

func TestSelectorDedupesByName(t *testing.T) {
	s := NewSelector()
	recs := append(sample(), Recommendation{Name: "Arches", Reason: "duplicate"})
	s.Apply(s.Begin(), recs)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, "keyword match", s.Items()[0].Reason)
}

func TestSelectorOnly(t *testing.T) {
	s := NewSelector()
	s.Apply(s.Begin(), sample())

	require.NoError(t, s.Only([]string{"Stars", " Arches"}))
	assert.Equal(t, []string{"Arches", "Stars"}, s.CurrentSelection())

	err := s.Only([]string{"Nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nope")
	assert.Equal(t, []string{"Arches", "Stars"}, s.CurrentSelection())
}
