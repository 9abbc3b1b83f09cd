// Package buffer holds the derived per-modality buffers and the conversions that fill them.
package buffer

// Plane is an owned buffer sized to a modality's resolution. It is allocated on first use,
// reallocated only when the resolution changes, and overwritten in place otherwise.
type Plane[T any] struct {
	channels int

	width  int
	height int
	data   []T

	// frame is the id of the frame the contents were derived from, 0 when stale.
	frame  uint64
	allocs int
}

// NewPlane returns an empty plane holding channels elements per pixel.
func NewPlane[T any](channels int) *Plane[T] {
	if channels < 1 {
		channels = 1
	}
	return &Plane[T]{channels: channels}
}

// Resize makes the plane hold width*height pixels and reports whether it reallocated.
// Resizing to the current resolution keeps the contents.
func (p *Plane[T]) Resize(width, height int) bool {
	if p.data != nil && width == p.width && height == p.height {
		return false
	}

	p.width = width
	p.height = height
	p.data = make([]T, width*height*p.channels)
	p.frame = 0
	p.allocs++

	return true
}

// Data returns the plane contents.
func (p *Plane[T]) Data() []T {
	return p.data
}

// Len returns the number of elements in the plane.
func (p *Plane[T]) Len() int {
	return len(p.data)
}

func (p *Plane[T]) Width() int {
	return p.width
}

func (p *Plane[T]) Height() int {
	return p.height
}

// Allocs returns how many times the plane allocated its storage.
func (p *Plane[T]) Allocs() int {
	return p.allocs
}

// Current reports whether the contents were derived from frame.
func (p *Plane[T]) Current(frame uint64) bool {
	return p.data != nil && frame != 0 && p.frame == frame
}

// Mark records that the contents now reflect frame.
func (p *Plane[T]) Mark(frame uint64) {
	p.frame = frame
}

// Invalidate forces the next Current check to fail without freeing storage.
func (p *Plane[T]) Invalidate() {
	p.frame = 0
}

// Release frees the storage.
func (p *Plane[T]) Release() {
	p.width = 0
	p.height = 0
	p.data = nil
	p.frame = 0
}
