package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNoWindow is returned by OpenWindow when no window is attached and no
// launcher is configured.
var ErrNoWindow = errors.New("no window available")

// Window is an attached client the agent can focus on a route.
type Window interface {
	Navigate(ctx context.Context, route string) error
}

// WindowFunc adapts a function to Window.
type WindowFunc func(ctx context.Context, route string) error

// Navigate implements Window.
func (f WindowFunc) Navigate(ctx context.Context, route string) error {
	return f(ctx, route)
}

// Launcher opens a new window at an absolute URL.
type Launcher func(ctx context.Context, url string) error

// Clients tracks attached windows. OpenWindow focuses the most recently
// attached one, or launches a new window when none is attached.
type Clients struct {
	baseURL string
	launch  Launcher

	mu      sync.Mutex
	nextID  int
	windows map[int]Window
	order   []int
}

// NewClients creates a registry for windows on baseURL.
func NewClients(baseURL string, launch Launcher) *Clients {
	return &Clients{
		baseURL: strings.TrimRight(baseURL, "/"),
		launch:  launch,
		windows: make(map[int]Window),
	}
}

// Attach registers w and returns a function that detaches it.
func (c *Clients) Attach(w Window) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.windows[id] = w
	c.order = append(c.order, id)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.windows, id)
		for i, o := range c.order {
			if o == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

// Count returns the number of attached windows.
func (c *Clients) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// OpenWindow focuses an attached window on route or opens a new one.
func (c *Clients) OpenWindow(ctx context.Context, route string) error {
	c.mu.Lock()
	var w Window
	if n := len(c.order); n > 0 {
		w = c.windows[c.order[n-1]]
	}
	c.mu.Unlock()

	if w != nil {
		return w.Navigate(ctx, route)
	}
	if c.launch == nil {
		return ErrNoWindow
	}
	return c.launch(ctx, c.baseURL+route)
}
