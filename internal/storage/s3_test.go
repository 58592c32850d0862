package storage

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key := objectKey("Holiday Photo.JPG")

	now := time.Now().UTC()
	prefix := fmt.Sprintf("media/%d/%02d/", now.Year(), int(now.Month()))
	assert.True(t, strings.HasPrefix(key, prefix), "key %q should start with %q", key, prefix)
	assert.True(t, strings.HasSuffix(key, ".jpg"), "extension is lowercased")

	// Keys must never collide for the same filename.
	assert.NotEqual(t, key, objectKey("Holiday Photo.JPG"))
}

func TestObjectKey_NoExtension(t *testing.T) {
	key := objectKey("README")
	assert.False(t, strings.Contains(key, "."), "no extension means no dot: %q", key)
}

func TestKeyFromURL(t *testing.T) {
	s := NewS3Store(nil, "voluntr-media", "https://cdn.test/")

	key, err := s.keyFromURL("https://cdn.test/media/2026/09/abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, "media/2026/09/abc.jpg", key)
}

func TestKeyFromURL_WrongBase(t *testing.T) {
	s := NewS3Store(nil, "voluntr-media", "https://cdn.test")

	_, err := s.keyFromURL("https://elsewhere.test/media/2026/09/abc.jpg")
	assert.Error(t, err)

	_, err = s.keyFromURL("https://cdn.test/")
	assert.Error(t, err)
}
