// Package view renders catalog data as text and tracks the loading indicator.
package view

import (
	"fmt"
	"io"
	"sync"
)

// Loading is the busy indicator. Every ShowLoading(true) is paired with
// exactly one ShowLoading(false).
type Loading interface {
	ShowLoading(show bool)
}

// Begin shows the indicator and returns the function that hides it. The
// returned function is safe to call more than once; only the first call hides.
//
//	done := view.Begin(l)
//	defer done()
func Begin(l Loading) func() {
	if l == nil {
		return func() {}
	}
	l.ShowLoading(true)
	var once sync.Once
	return func() {
		once.Do(func() { l.ShowLoading(false) })
	}
}

// NopLoading ignores the indicator.
type NopLoading struct{}

func (NopLoading) ShowLoading(bool) {}

// Spinner prints "Loading..." while at least one operation is in flight and
// clears the line when the last one ends.
type Spinner struct {
	mu    sync.Mutex
	w     io.Writer
	depth int
}

// NewSpinner creates a Spinner on w, typically stderr.
func NewSpinner(w io.Writer) *Spinner {
	return &Spinner{w: w}
}

func (s *Spinner) ShowLoading(show bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if show {
		s.depth++
		if s.depth == 1 {
			_, _ = fmt.Fprint(s.w, "Loading...")
		}
		return
	}
	if s.depth == 0 {
		return
	}
	s.depth--
	if s.depth == 0 {
		_, _ = fmt.Fprint(s.w, "\r\033[K")
	}
}

// Counter counts indicator calls. Balanced reports whether every show was
// hidden again.
type Counter struct {
	mu    sync.Mutex
	shows int
	hides int
	depth int
	max   int
}

func (c *Counter) ShowLoading(show bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if show {
		c.shows++
		c.depth++
		if c.depth > c.max {
			c.max = c.depth
		}
		return
	}
	c.hides++
	c.depth--
}

// Counts returns the number of show and hide calls.
func (c *Counter) Counts() (shows, hides int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shows, c.hides
}

// Balanced reports whether shows and hides match.
func (c *Counter) Balanced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth == 0 && c.shows == c.hides
}

// Multi fans indicator calls out to several indicators.
type Multi []Loading

func (m Multi) ShowLoading(show bool) {
	for _, l := range m {
		l.ShowLoading(show)
	}
}
