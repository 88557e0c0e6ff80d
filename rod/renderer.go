// Package rod provides a browser-backed renderer for JavaScript-rendered
// documentation sites.
package rod

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/memoracle/memoracle"
)

// Ensure Renderer implements memoracle.Renderer at compile time.
var _ memoracle.Renderer = (*Renderer)(nil)

// Renderer produces rendered HTML using headless Chrome. It is safe for
// concurrent use by multiple goroutines.
type Renderer struct {
	browser *rod.Browser
}

// NewRenderer launches a headless Chrome browser. Close must be called
// when the Renderer is no longer needed.
//
// Returns an error if Chrome/Chromium cannot be found or launched.
func NewRenderer() (*Renderer, error) {
	l := launcher.New().Headless(true)
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	return &Renderer{browser: browser}, nil
}

// Render navigates to the URL, waits for the load event, and returns the
// rendered HTML.
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	page, err := r.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", err
	}
	defer page.Close()

	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return "", err
	}
	if err := page.WaitLoad(); err != nil {
		return "", err
	}

	return page.HTML()
}

// Close releases browser resources.
func (r *Renderer) Close() error {
	return r.browser.Close()
}
