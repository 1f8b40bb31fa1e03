// Package notice carries short user-facing messages (signal updates, scan
// results, connection failures) from the core to whatever presentation layer
// is attached.
package notice

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level is the severity of a notice.
type Level string

// Notice levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// DefaultCapacity is the number of notices retained by a Center.
const DefaultCapacity = 50

// Notice is a single user-facing message.
type Notice struct {
	ID      uint64    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier accepts user-facing messages.
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, message string)

// Notify calls f.
func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(Level, string) {})

// CenterConfig configures a Center.
type CenterConfig struct {
	Capacity int
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Center retains the most recent notices and fans new ones out to subscribers.
// Slow subscribers miss notices rather than block the sender.
type Center struct {
	mu       sync.RWMutex
	ring     []Notice
	capacity int
	nextID   uint64
	subs     map[uint64]chan Notice
	nextSub  uint64
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCenter creates a Center.
func NewCenter(cfg CenterConfig) *Center {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Center{
		ring:     make([]Notice, 0, cfg.Capacity),
		capacity: cfg.Capacity,
		subs:     make(map[uint64]chan Notice),
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Notify records a notice and delivers it to subscribers.
func (c *Center) Notify(level Level, message string) {
	c.mu.Lock()
	c.nextID++
	n := Notice{ID: c.nextID, Level: level, Message: message, Time: c.now()}
	if len(c.ring) == c.capacity {
		copy(c.ring, c.ring[1:])
		c.ring = c.ring[:len(c.ring)-1]
	}
	c.ring = append(c.ring, n)
	for _, ch := range c.subs {
		select {
		case ch <- n:
		default:
		}
	}
	c.mu.Unlock()

	c.logger.Debug().
		Uint64("notice_id", n.ID).
		Str("level", string(level)).
		Msg(message)
}

// Recent returns up to limit notices, oldest first. A non-positive limit
// returns everything retained.
func (c *Center) Recent(limit int) []Notice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := 0
	if limit > 0 && limit < len(c.ring) {
		start = len(c.ring) - limit
	}
	out := make([]Notice, len(c.ring)-start)
	copy(out, c.ring[start:])
	return out
}

// Since returns retained notices with an ID greater than id, oldest first.
func (c *Center) Since(id uint64) []Notice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Notice
	for _, n := range c.ring {
		if n.ID > id {
			out = append(out, n)
		}
	}
	return out
}

// Subscribe returns a channel receiving every subsequent notice and a function
// that ends the subscription and closes the channel.
func (c *Center) Subscribe(buffer int) (<-chan Notice, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Notice, buffer)

	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}
