package main

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestEmptyHubIsDropped(t *testing.T) {
	r := newRelay()

	h, m1, count := r.join("a")
	assert.Equal(t, count, 1)
	h2, m2, count2 := r.join("a")
	assert.Equal(t, h2, h)
	assert.Equal(t, count2, 2)

	// the hub stays while it has members
	assert.Equal(t, r.leave(h, m1), 1)
	r.mutex.Lock()
	_, ok := r.hubs["a"]
	r.mutex.Unlock()
	assert.Equal(t, ok, true)

	// the last leave drops the hub entry
	assert.Equal(t, r.leave(h, m2), 0)
	r.mutex.Lock()
	_, ok = r.hubs["a"]
	r.mutex.Unlock()
	assert.Equal(t, ok, false)

	// a later subscriber gets a fresh hub
	h3, m3, count3 := r.join("a")
	assert.Equal(t, count3, 1)
	assert.Equal(t, h3 == h, false)
	r.leave(h3, m3)
}
