package trigger

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/capitalize-ai/persona-relay/internal/model"
)

// Coalescer merges bursts of channel comments from the same author
// into one response. Each new comment restarts the author's window;
// when the window elapses without another comment, fire is called once
// with the joined text and the latest comment.
type Coalescer struct {
	window time.Duration
	fire   func(joined string, latest *model.Update)

	mu      sync.Mutex
	pending map[string]*commentBuffer
}

type commentBuffer struct {
	texts  []string
	latest *model.Update
	timer  *time.Timer
}

// NewCoalescer creates a coalescer with the given merge window.
func NewCoalescer(window time.Duration, fire func(string, *model.Update)) *Coalescer {
	return &Coalescer{
		window:  window,
		fire:    fire,
		pending: make(map[string]*commentBuffer),
	}
}

// Add buffers one comment and restarts its author's merge window.
func (c *Coalescer) Add(u *model.Update) {
	key := bufferKey(u)

	c.mu.Lock()
	defer c.mu.Unlock()

	buf, ok := c.pending[key]
	if !ok {
		buf = &commentBuffer{}
		c.pending[key] = buf
	}
	if buf.timer != nil {
		buf.timer.Stop()
	}
	buf.texts = append(buf.texts, u.Text)
	buf.latest = u
	buf.timer = time.AfterFunc(c.window, func() { c.flush(key) })
}

func (c *Coalescer) flush(key string) {
	c.mu.Lock()
	buf, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.fire(strings.Join(buf.texts, " "), buf.latest)
}

// Stop cancels all pending windows without firing them.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, buf := range c.pending {
		buf.timer.Stop()
		delete(c.pending, key)
	}
}

func bufferKey(u *model.Update) string {
	return strconv.FormatInt(u.ChatID, 10) + ":" + strconv.FormatInt(u.From.ID, 10)
}
