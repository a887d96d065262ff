package webdriver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// w3cElementKey is the element identifier key in W3C find-element responses.
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// Client talks to a WebDriver remote end (chromedriver, geckodriver, a
// Selenium grid).
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client for the given remote end, e.g.
// "http://localhost:9515". A nil hc uses a 30s-timeout default client.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{BaseURL: baseURL, HTTPClient: hc}
}

// NewSession starts a browser session. Empty capabilities request a plain
// session; the remote end picks the browser.
func (c *Client) NewSession(ctx context.Context, capabilities map[string]any) (Session, error) {
	if capabilities == nil {
		capabilities = map[string]any{"alwaysMatch": map[string]any{}}
	}
	var resp struct {
		SessionID string         `json:"sessionId"`
		Caps      map[string]any `json:"capabilities"`
	}
	if err := c.do(ctx, http.MethodPost, "/session", map[string]any{"capabilities": capabilities}, &resp); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	if resp.SessionID == "" {
		return nil, &Error{Code: "session not created", Message: "remote end returned no session id"}
	}
	return &remoteSession{client: c, id: resp.SessionID}, nil
}

// do performs one WebDriver request. W3C responses wrap payloads in a
// "value" envelope; error responses carry {"value":{"error","message"}}.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%s %s: malformed response: %w", method, path, err)
	}

	if resp.StatusCode >= 400 {
		var werr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(envelope.Value, &werr)
		return &Error{Code: werr.Error, Message: werr.Message, Status: resp.StatusCode}
	}

	if out != nil && len(envelope.Value) > 0 {
		if err := json.Unmarshal(envelope.Value, out); err != nil {
			return fmt.Errorf("%s %s: decode value: %w", method, path, err)
		}
	}
	return nil
}

// remoteSession implements Session against a live remote end.
type remoteSession struct {
	client *Client
	id     string
}

func (s *remoteSession) path(suffix string) string {
	return "/session/" + url.PathEscape(s.id) + suffix
}

func (s *remoteSession) Navigate(ctx context.Context, target string) error {
	return s.client.do(ctx, http.MethodPost, s.path("/url"), map[string]any{"url": target}, nil)
}

func (s *remoteSession) CurrentURL(ctx context.Context) (string, error) {
	var out string
	err := s.client.do(ctx, http.MethodGet, s.path("/url"), nil, &out)
	return out, err
}

func (s *remoteSession) Title(ctx context.Context) (string, error) {
	var out string
	err := s.client.do(ctx, http.MethodGet, s.path("/title"), nil, &out)
	return out, err
}

// findElement resolves a locator to an element id.
func (s *remoteSession) findElement(ctx context.Context, by, selector string) (string, error) {
	var out map[string]string
	err := s.client.do(ctx, http.MethodPost, s.path("/element"), map[string]any{
		"using": by,
		"value": selector,
	}, &out)
	if err != nil {
		return "", err
	}
	id := out[w3cElementKey]
	if id == "" {
		return "", &Error{Code: "no such element", Message: fmt.Sprintf("locator %s=%q", by, selector)}
	}
	return id, nil
}

func (s *remoteSession) elementPath(elementID, suffix string) string {
	return s.path("/element/" + url.PathEscape(elementID) + suffix)
}

func (s *remoteSession) Click(ctx context.Context, by, selector string) error {
	id, err := s.findElement(ctx, by, selector)
	if err != nil {
		return err
	}
	return s.client.do(ctx, http.MethodPost, s.elementPath(id, "/click"), map[string]any{}, nil)
}

func (s *remoteSession) SendKeys(ctx context.Context, by, selector, text string) error {
	id, err := s.findElement(ctx, by, selector)
	if err != nil {
		return err
	}
	return s.client.do(ctx, http.MethodPost, s.elementPath(id, "/value"), map[string]any{"text": text}, nil)
}

func (s *remoteSession) Clear(ctx context.Context, by, selector string) error {
	id, err := s.findElement(ctx, by, selector)
	if err != nil {
		return err
	}
	return s.client.do(ctx, http.MethodPost, s.elementPath(id, "/clear"), map[string]any{}, nil)
}

func (s *remoteSession) Text(ctx context.Context, by, selector string) (string, error) {
	id, err := s.findElement(ctx, by, selector)
	if err != nil {
		return "", err
	}
	var out string
	err = s.client.do(ctx, http.MethodGet, s.elementPath(id, "/text"), nil, &out)
	return out, err
}

func (s *remoteSession) Attribute(ctx context.Context, by, selector, name string) (string, error) {
	id, err := s.findElement(ctx, by, selector)
	if err != nil {
		return "", err
	}
	var out string
	err = s.client.do(ctx, http.MethodGet, s.elementPath(id, "/attribute/"+url.PathEscape(name)), nil, &out)
	return out, err
}

// WaitFor polls for the element until it appears or the timeout elapses.
func (s *remoteSession) WaitFor(ctx context.Context, by, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		if _, err := s.findElement(ctx, by, selector); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wait for %s=%q: timed out after %s: %w", by, selector, timeout, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (s *remoteSession) Screenshot(ctx context.Context) ([]byte, error) {
	var encoded string
	if err := s.client.do(ctx, http.MethodGet, s.path("/screenshot"), nil, &encoded); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func (s *remoteSession) Close(ctx context.Context) error {
	return s.client.do(ctx, http.MethodDelete, s.path(""), nil, nil)
}
