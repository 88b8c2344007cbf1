package state

import (
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Deduplicator tracks which endpoints have been seen using a Bloom filter
// backed by an exact set.
type Deduplicator struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
	count  int
}

// NewDeduplicator creates a new deduplicator.
func NewDeduplicator(estimatedItems int) *Deduplicator {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	return &Deduplicator{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[string]struct{}),
	}
}

// Add records key. It reports whether key was new.
func (d *Deduplicator) Add(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.exact[key]; exists {
		return false
	}
	d.filter.AddString(key)
	d.exact[key] = struct{}{}
	d.count++
	return true
}

// HasSeen checks if key has been recorded.
func (d *Deduplicator) HasSeen(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.filter.TestString(key) {
		return false
	}

	// Bloom filters can give false positives
	_, exists := d.exact[key]
	return exists
}

// Count returns the number of unique keys seen.
func (d *Deduplicator) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count
}

// Reset forgets every key.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.filter.ClearAll()
	d.exact = make(map[string]struct{})
	d.count = 0
}

// EndpointKey builds the dedup key for an endpoint: upper-cased method and
// normalized path, so "/users/" and "//users" collapse to "GET /users".
func EndpointKey(method, path string) string {
	return strings.ToUpper(method) + " " + NormalizePath(path)
}

// NormalizePath removes duplicate and trailing slashes and resolves dot
// segments.
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}

	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case ".", "":
			continue
		case "..":
			if len(result) > 0 {
				result = result[:len(result)-1]
			}
		default:
			result = append(result, part)
		}
	}

	return "/" + strings.Join(result, "/")
}
