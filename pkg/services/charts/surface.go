// Package charts keeps chart handles bound to drawing surfaces.
//
// A Surface owns at most one Handle. Drawing on it destroys the previous
// handle before a new one is rendered, and Release destroys the last one
// when the surface goes away.
package charts

import (
	"context"
	"errors"
	"sync"

	"github.com/liut/parlor/pkg/transcript"
)

var ErrReleased = errors.New("surface released")

// Handle a chart drawn by a Renderer
type Handle interface {
	Destroy()
}

// Renderer the charting backend
type Renderer interface {
	Render(ctx context.Context, spec *transcript.Chart) (Handle, error)
}

// Surface ...
type Surface struct {
	mu       sync.Mutex
	r        Renderer
	h        Handle
	released bool
}

// NewSurface ...
func NewSurface(r Renderer) *Surface {
	return &Surface{r: r}
}

// Draw replaces the current chart. A nil spec only clears the surface.
func (s *Surface) Draw(ctx context.Context, spec *transcript.Chart) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrReleased
	}
	s.destroy()
	if spec == nil {
		return nil, nil
	}
	h, err := s.r.Render(ctx, spec)
	if err != nil {
		logger().Infow("render chart fail", "type", spec.Type, "err", err)
		return nil, err
	}
	s.h = h
	return h, nil
}

// Current handle, nil when empty
func (s *Surface) Current() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h
}

// Release destroys the current chart, the surface cannot draw afterwards
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroy()
	s.released = true
}

func (s *Surface) destroy() {
	if s.h != nil {
		s.h.Destroy()
		s.h = nil
	}
}
