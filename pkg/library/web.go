package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ormasoftchile/tessera/pkg/blocks"
	"github.com/ormasoftchile/tessera/pkg/webdriver"
)

// maskedSecret replaces secret text in recorded outputs.
const maskedSecret = "********"

func registerWeb(reg *blocks.Registry, opts Options) {
	selector := blocks.InputSpec{
		Name: "selector", Kind: blocks.InputField, Type: "string", Required: true,
		Doc: "CSS by default; prefix with xpath=, link= or tag= for other strategies.",
	}

	reg.Register(&blocks.Descriptor{
		Type:     "web.session",
		Category: "web",
		Summary:  "Open a browser session.",
		Doc: "Uses the WebDriver endpoint from project config. A case owns at " +
			"most one session; opening a second one closes the first.",
		Inputs: []blocks.InputSpec{
			{Name: "url", Kind: blocks.InputField, Type: "string", Doc: "Optional first navigation target."},
		},
		Statement: true,
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			if opts.WebDriver == nil {
				return nil, errors.New("web.session: no WebDriver endpoint configured")
			}
			if ec.Browser != nil {
				_ = ec.Browser.Close(ctx)
				ec.Browser = nil
			}
			sess, err := opts.WebDriver.NewSession(ctx, opts.Capabilities)
			if err != nil {
				return nil, err
			}
			ec.Browser = sess
			out := map[string]any{"session": true}
			if target := call.String("url"); target != "" {
				if err := sess.Navigate(ctx, target); err != nil {
					return nil, err
				}
				out["url"] = target
			}
			return out, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "web.navigate",
		Category: "web",
		Summary:  "Navigate the browser to a URL.",
		Inputs: []blocks.InputSpec{
			{Name: "url", Kind: blocks.InputField, Type: "string", Required: true},
		},
		Statement: true,
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			sess, err := requireSession(ec)
			if err != nil {
				return nil, err
			}
			target := call.String("url")
			if err := sess.Navigate(ctx, target); err != nil {
				return nil, err
			}
			return map[string]any{"url": target}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:      "web.click",
		Category:  "web",
		Summary:   "Click an element.",
		Inputs:    []blocks.InputSpec{selector},
		Statement: true,
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			sess, err := requireSession(ec)
			if err != nil {
				return nil, err
			}
			by, sel := webdriver.ParseLocator(call.String("selector"))
			if err := sess.Click(ctx, by, sel); err != nil {
				return nil, err
			}
			return map[string]any{"clicked": call.String("selector")}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "web.type",
		Category: "web",
		Summary:  "Type text into an element.",
		Doc: "With `secret`, the typed text is masked in step outputs and " +
			"reports. `clear` empties the field first.",
		Inputs: []blocks.InputSpec{
			selector,
			{Name: "text", Kind: blocks.InputValue, Type: "string", Required: true},
			{Name: "secret", Kind: blocks.InputField, Type: "bool", Default: false},
			{Name: "clear", Kind: blocks.InputField, Type: "bool", Default: false},
		},
		Statement: true,
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			sess, err := requireSession(ec)
			if err != nil {
				return nil, err
			}
			by, sel := webdriver.ParseLocator(call.String("selector"))
			if call.Bool("clear") {
				if err := sess.Clear(ctx, by, sel); err != nil {
					return nil, err
				}
			}
			text := call.String("text")
			if err := sess.SendKeys(ctx, by, sel, text); err != nil {
				return nil, err
			}
			recorded := text
			if call.Bool("secret") {
				recorded = maskedSecret
			}
			return map[string]any{"selector": call.String("selector"), "text": recorded}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "web.read",
		Category: "web",
		Summary:  "Read an element's visible text.",
		Inputs:   []blocks.InputSpec{selector},
		Output:   "string",
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			sess, err := requireSession(ec)
			if err != nil {
				return nil, err
			}
			by, sel := webdriver.ParseLocator(call.String("selector"))
			return sess.Text(ctx, by, sel)
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "web.attribute",
		Category: "web",
		Summary:  "Read an element attribute.",
		Inputs: []blocks.InputSpec{
			selector,
			{Name: "name", Kind: blocks.InputField, Type: "string", Required: true},
		},
		Output: "string",
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			sess, err := requireSession(ec)
			if err != nil {
				return nil, err
			}
			by, sel := webdriver.ParseLocator(call.String("selector"))
			return sess.Attribute(ctx, by, sel, call.String("name"))
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:     "web.wait_for",
		Category: "web",
		Summary:  "Wait until an element appears.",
		Inputs: []blocks.InputSpec{
			selector,
			{Name: "timeout", Kind: blocks.InputField, Type: "string", Default: "10s"},
		},
		Statement: true,
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			sess, err := requireSession(ec)
			if err != nil {
				return nil, err
			}
			by, sel := webdriver.ParseLocator(call.String("selector"))
			timeout := call.Duration("timeout", 10*time.Second)
			if err := sess.WaitFor(ctx, by, sel, timeout); err != nil {
				return nil, err
			}
			return map[string]any{"found": call.String("selector")}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:      "web.screenshot",
		Category:  "web",
		Summary:   "Capture a screenshot into the run's artifact directory.",
		Statement: true,
		Output:    "map",
		Exec: func(ctx context.Context, ec *blocks.ExecContext, call *blocks.Call) (any, error) {
			sess, err := requireSession(ec)
			if err != nil {
				return nil, err
			}
			png, err := sess.Screenshot(ctx)
			if err != nil {
				return nil, err
			}
			if ec.Artifacts == nil {
				return map[string]any{"bytes": len(png)}, nil
			}
			path, err := ec.Artifacts.SaveScreenshot(call.Step.ID, png)
			if err != nil {
				return nil, fmt.Errorf("save screenshot: %w", err)
			}
			return map[string]any{"path": path, "bytes": len(png)}, nil
		},
	})

	reg.Register(&blocks.Descriptor{
		Type:      "web.close",
		Category:  "web",
		Summary:   "Close the browser session.",
		Statement: true,
		Exec: func(ctx context.Context, ec *blocks.ExecContext, _ *blocks.Call) (any, error) {
			if ec.Browser == nil {
				return map[string]any{"closed": false}, nil
			}
			err := ec.Browser.Close(ctx)
			ec.Browser = nil
			if err != nil {
				return nil, err
			}
			return map[string]any{"closed": true}, nil
		},
	})
}

func requireSession(ec *blocks.ExecContext) (webdriver.Session, error) {
	if ec.Browser == nil {
		return nil, errors.New("no browser session: run web.session first")
	}
	return ec.Browser, nil
}
