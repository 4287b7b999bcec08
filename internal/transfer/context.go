package transfer

import (
	"sync/atomic"
	"time"
)

// Direction names which way file content flows.
type Direction string

const (
	Download Direction = "download"
	Upload   Direction = "upload"
)

// ProgressFunc observes byte accounting after every chunk.
type ProgressFunc func(done, total int64)

// Context is the bookkeeping for one in-flight file operation.
// Transferred never exceeds Declared.
type Context struct {
	Direction Direction
	Name      string
	Declared  int64
	StartedAt time.Time

	transferred atomic.Int64
	progress    ProgressFunc
}

// Progress is a point-in-time copy of a Context.
type Progress struct {
	Direction   Direction `json:"direction"`
	Name        string    `json:"name"`
	Declared    int64     `json:"declared"`
	Transferred int64     `json:"transferred"`
}

func NewContext(dir Direction, name string, declared int64) *Context {
	return &Context{
		Direction: dir,
		Name:      name,
		Declared:  declared,
		StartedAt: time.Now(),
	}
}

// OnProgress installs fn and returns c.
func (c *Context) OnProgress(fn ProgressFunc) *Context {
	c.progress = fn
	return c
}

func (c *Context) Transferred() int64 {
	return c.transferred.Load()
}

func (c *Context) Remaining() int64 {
	return c.Declared - c.transferred.Load()
}

func (c *Context) Complete() bool {
	return c.transferred.Load() == c.Declared
}

func (c *Context) Progress() Progress {
	return Progress{
		Direction:   c.Direction,
		Name:        c.Name,
		Declared:    c.Declared,
		Transferred: c.transferred.Load(),
	}
}

func (c *Context) add(n int) {
	done := c.transferred.Add(int64(n))
	if c.progress != nil {
		c.progress(done, c.Declared)
	}
}
