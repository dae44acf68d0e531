// Package imagecache holds decoded hint images keyed by their source URL.
package imagecache

import (
	"image"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DefaultCapacity covers the image on screen plus the one prefetched for the next question.
const DefaultCapacity = 2

// Cache is a fixed-capacity LRU of decoded images. It is safe for concurrent use.
// One Cache lives for the duration of a quiz session and is cleared when it ends.
type Cache struct {
	lru *lru.Cache[string, image.Image]
}

// New creates a cache holding at most capacity images.
// A non-positive capacity selects DefaultCapacity.
func New(capacity int, logger zerolog.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.NewWithEvict(capacity, func(url string, _ image.Image) {
		logger.Debug().Str("url", url).Msg("hint image evicted")
	})
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &Cache{lru: l}
}

// Get returns the image cached for url and marks it most recently used.
func (c *Cache) Get(url string) (image.Image, bool) {
	return c.lru.Get(url)
}

// Put stores img under url unless url is already cached or img is nil.
// The first writer wins so a duplicate download never replaces an image
// a caller may already hold. It reports whether img was inserted.
func (c *Cache) Put(url string, img image.Image) bool {
	if img == nil {
		return false
	}
	found, _ := c.lru.ContainsOrAdd(url, img)
	return !found
}

// Clear evicts every entry.
func (c *Cache) Clear() {
	c.lru.Purge()
}

// Len returns the number of cached images.
func (c *Cache) Len() int {
	return c.lru.Len()
}
