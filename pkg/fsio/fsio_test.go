package fsio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripBOM(t *testing.T) {
	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello")...)
	assert.Equal(t, []byte("hello"), StripBOM(withBOM))
	assert.Equal(t, []byte("hello"), StripBOM([]byte("hello")))
}

func TestMemoryAdapterWriteIfDifferent(t *testing.T) {
	m := NewMemoryAdapter()
	wrote, err := m.WriteFileIfDifferent("a.txt", []byte("one"), 0o644)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = m.WriteFileIfDifferent("a.txt", []byte("one"), 0o644)
	require.NoError(t, err)
	assert.False(t, wrote)

	wrote, err = m.WriteFileIfDifferent("a.txt", []byte("two"), 0o644)
	require.NoError(t, err)
	assert.True(t, wrote)
}

func TestMemoryAdapterModTimeAdvancesOnWrite(t *testing.T) {
	m := NewMemoryAdapter()
	_, err := m.WriteFileIfDifferent("a.txt", []byte("one"), 0o644)
	require.NoError(t, err)
	fi1, err := m.Stat("a.txt")
	require.NoError(t, err)

	m.Advance(time.Hour)
	_, err = m.WriteFileIfDifferent("a.txt", []byte("two"), 0o644)
	require.NoError(t, err)
	fi2, err := m.Stat("a.txt")
	require.NoError(t, err)

	assert.True(t, fi2.ModTime().After(fi1.ModTime()))
}
