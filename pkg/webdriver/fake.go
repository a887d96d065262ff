package webdriver

import (
	"context"
	"fmt"
	"time"
)

// Fake is a scriptable Session for tests and offline replay. Unset func
// fields succeed with zero values; every invocation is appended to Calls.
type Fake struct {
	NavigateFunc   func(url string) error
	CurrentURLFunc func() (string, error)
	TitleFunc      func() (string, error)
	ClickFunc      func(by, selector string) error
	SendKeysFunc   func(by, selector, text string) error
	ClearFunc      func(by, selector string) error
	TextFunc       func(by, selector string) (string, error)
	AttributeFunc  func(by, selector, name string) (string, error)
	WaitForFunc    func(by, selector string) error
	ScreenshotFunc func() ([]byte, error)
	CloseFunc      func() error

	Calls []string
}

func (f *Fake) record(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

func (f *Fake) Navigate(_ context.Context, url string) error {
	f.record("navigate %s", url)
	if f.NavigateFunc != nil {
		return f.NavigateFunc(url)
	}
	return nil
}

func (f *Fake) CurrentURL(_ context.Context) (string, error) {
	f.record("current_url")
	if f.CurrentURLFunc != nil {
		return f.CurrentURLFunc()
	}
	return "", nil
}

func (f *Fake) Title(_ context.Context) (string, error) {
	f.record("title")
	if f.TitleFunc != nil {
		return f.TitleFunc()
	}
	return "", nil
}

func (f *Fake) Click(_ context.Context, by, selector string) error {
	f.record("click %s=%s", by, selector)
	if f.ClickFunc != nil {
		return f.ClickFunc(by, selector)
	}
	return nil
}

func (f *Fake) SendKeys(_ context.Context, by, selector, text string) error {
	f.record("send_keys %s=%s", by, selector)
	if f.SendKeysFunc != nil {
		return f.SendKeysFunc(by, selector, text)
	}
	return nil
}

func (f *Fake) Clear(_ context.Context, by, selector string) error {
	f.record("clear %s=%s", by, selector)
	if f.ClearFunc != nil {
		return f.ClearFunc(by, selector)
	}
	return nil
}

func (f *Fake) Text(_ context.Context, by, selector string) (string, error) {
	f.record("text %s=%s", by, selector)
	if f.TextFunc != nil {
		return f.TextFunc(by, selector)
	}
	return "", nil
}

func (f *Fake) Attribute(_ context.Context, by, selector, name string) (string, error) {
	f.record("attribute %s=%s %s", by, selector, name)
	if f.AttributeFunc != nil {
		return f.AttributeFunc(by, selector, name)
	}
	return "", nil
}

func (f *Fake) WaitFor(_ context.Context, by, selector string, _ time.Duration) error {
	f.record("wait_for %s=%s", by, selector)
	if f.WaitForFunc != nil {
		return f.WaitForFunc(by, selector)
	}
	return nil
}

func (f *Fake) Screenshot(_ context.Context) ([]byte, error) {
	f.record("screenshot")
	if f.ScreenshotFunc != nil {
		return f.ScreenshotFunc()
	}
	return []byte("png"), nil
}

func (f *Fake) Close(_ context.Context) error {
	f.record("close")
	if f.CloseFunc != nil {
		return f.CloseFunc()
	}
	return nil
}
