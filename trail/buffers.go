package trail

import (
	"fmt"

	"trailfield/core"
)

// WriteTarget is the buffer a feedback dispatch writes this frame.
type WriteTarget struct{ t Target }

// Target returns the underlying device target.
func (w WriteTarget) Target() Target { return w.t }

// ReadTarget is the buffer finished by the previous feedback dispatch.
type ReadTarget struct{ t Target }

// Target returns the underlying device target.
func (r ReadTarget) Target() Target { return r.t }

// BufferPair holds the two accumulation buffers and which one is current.
// Roles only change through Swap.
type BufferPair struct {
	bufs    [2]Target
	current int
	width   int
	height  int
}

// NewBufferPair allocates two equally sized targets and clears both to zero.
func NewBufferPair(dev Device, width, height int) (*BufferPair, error) {
	p := &BufferPair{width: width, height: height}
	for i := range p.bufs {
		t, err := dev.NewTarget(width, height)
		if err != nil {
			p.Release()
			return nil, fmt.Errorf("allocate accumulation buffer %d: %w", i, err)
		}
		p.bufs[i] = t
		if err := dev.Clear(t); err != nil {
			p.Release()
			return nil, fmt.Errorf("clear accumulation buffer %d: %w", i, err)
		}
	}
	if p.bufs[0].ID() == p.bufs[1].ID() {
		p.Release()
		return nil, core.ResourceErrorf("device returned the same target twice (id %d)", p.bufs[0].ID())
	}
	return p, nil
}

// Current returns this frame's write target.
func (p *BufferPair) Current() WriteTarget { return WriteTarget{p.bufs[p.current]} }

// Previous returns the most recently completed buffer.
func (p *BufferPair) Previous() ReadTarget { return ReadTarget{p.bufs[1-p.current]} }

// Swap exchanges the two roles. No texel data moves.
func (p *BufferPair) Swap() { p.current = 1 - p.current }

// Size returns the resolution of both buffers.
func (p *BufferPair) Size() (width, height int) { return p.width, p.height }

// Release frees both targets.
func (p *BufferPair) Release() {
	for i, t := range p.bufs {
		if t != nil {
			t.Release()
			p.bufs[i] = nil
		}
	}
}
