// Package speculate holds the single-slot speculative completion cache.
//
// The cache remembers one expected future document prefix: the text above
// the cursor when a completion was fetched, followed by the whole
// completion. As the user types through the prediction, the text above the
// cursor keeps being a prefix of that expectation and the next predicted
// line can be served without another backend call.
package speculate

import "strings"

// Cache is a single-slot prefix cache. The zero value is an empty cache.
//
// Cache is not safe for concurrent use; its owner serializes access.
type Cache struct {
	fullText string
	valid    bool
}

// Query returns the next predicted line for the text currently above the
// cursor. It reports false, and clears the cache, when the stored
// expectation no longer extends currentAbove or has nothing left after it.
// A hit never modifies the cache: consumption is tracked by the caller's
// growing prefix.
func (c *Cache) Query(currentAbove string) (string, bool) {
	if !c.valid {
		return "", false
	}
	if !strings.HasPrefix(c.fullText, currentAbove) {
		c.Clear()
		return "", false
	}
	remaining := c.fullText[len(currentAbove):]
	if remaining == "" {
		c.Clear()
		return "", false
	}
	line, _, _ := strings.Cut(remaining, "\n")
	return line, true
}

// Store replaces the cached expectation with base followed by completion.
// Both are expected to use LF line endings.
func (c *Cache) Store(base, completion string) {
	c.fullText = base + completion
	c.valid = true
}

// Clear empties the cache. It is safe to call on an empty cache.
func (c *Cache) Clear() {
	c.fullText = ""
	c.valid = false
}

// Empty reports whether the cache holds no expectation.
func (c *Cache) Empty() bool { return !c.valid }
