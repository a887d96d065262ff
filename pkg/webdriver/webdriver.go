// Package webdriver is a minimal W3C WebDriver client: just the endpoints
// the web block family needs, over plain HTTP. Sessions belong to one test
// case; the interpreter never calls in here directly.
package webdriver

import (
	"context"
	"fmt"
	"time"
)

// Locator strategies per the W3C spec.
const (
	ByCSS      = "css selector"
	ByXPath    = "xpath"
	ByLinkText = "link text"
	ByTagName  = "tag name"
)

// Session is one browser session. Implementations: the remote HTTP client
// (Client.NewSession) and the scriptable Fake for tests and replay.
type Session interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Click(ctx context.Context, by, selector string) error
	SendKeys(ctx context.Context, by, selector, text string) error
	Clear(ctx context.Context, by, selector string) error
	Text(ctx context.Context, by, selector string) (string, error)
	Attribute(ctx context.Context, by, selector, name string) (string, error)
	WaitFor(ctx context.Context, by, selector string, timeout time.Duration) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// Error is a WebDriver protocol error ("no such element", ...).
type Error struct {
	Code    string // protocol error code
	Message string
	Status  int // HTTP status
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("webdriver: %s", e.Code)
	}
	return fmt.Sprintf("webdriver: %s: %s", e.Code, e.Message)
}

// ParseLocator splits a selector like "xpath=//a[1]" into a strategy and
// value. Selectors without a recognized prefix are CSS.
func ParseLocator(selector string) (by, value string) {
	for prefix, strategy := range map[string]string{
		"css=":   ByCSS,
		"xpath=": ByXPath,
		"link=":  ByLinkText,
		"tag=":   ByTagName,
	} {
		if len(selector) > len(prefix) && selector[:len(prefix)] == prefix {
			return strategy, selector[len(prefix):]
		}
	}
	return ByCSS, selector
}
