package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/core"
)

func TestInMemoryStore_SaveGetRoundTrip(t *testing.T) {
	s := NewInMemoryStore()

	require.NoError(t, s.Save("c1", Asset{ID: "a1", MIMEType: "image/png", Name: "chart.png", Data: []byte{1, 2, 3}}))

	got, err := s.Get("c1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "image/png", got.MIMEType)
	assert.Equal(t, []byte{1, 2, 3}, got.Data)
}

func TestInMemoryStore_GetCopiesData(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Save("c1", Asset{ID: "a1", Data: []byte{1, 2, 3}}))

	got, err := s.Get("c1", "a1")
	require.NoError(t, err)
	got.Data[0] = 99

	again, err := s.Get("c1", "a1")
	require.NoError(t, err)
	assert.Equal(t, byte(1), again.Data[0])
}

func TestInMemoryStore_NotFound(t *testing.T) {
	s := NewInMemoryStore()

	_, err := s.Get("c1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Delete("c1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_EmptyIDRejected(t *testing.T) {
	s := NewInMemoryStore()
	assert.Error(t, s.Save("c1", Asset{Data: []byte{1}}))
}

func TestInMemoryStore_ListAndDelete(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Save("c1", Asset{ID: "a1", Data: []byte{1}}))
	require.NoError(t, s.Save("c1", Asset{ID: "a2", Data: []byte{2}}))

	ids, err := s.List("c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids)

	require.NoError(t, s.Delete("c1", "a1"))
	ids, err = s.List("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids)
}

func TestPersistParts(t *testing.T) {
	s := NewInMemoryStore()
	parts := []core.Part{
		core.TextPart{Text: "here is the image"},
		core.DataPart{Bytes: []byte{0x89, 0x50}, MIMEType: "image/png", Name: "plot.png"},
		core.LinkPart{URI: "https://example.com/doc.pdf", MIMEType: "application/pdf"},
	}

	saved, err := PersistParts(s, "c1", parts)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "plot.png", saved[0].Name)

	got, err := s.Get("c1", saved[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50}, got.Data)
}
