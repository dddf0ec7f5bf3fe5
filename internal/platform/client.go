package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrTransport marks failures talking to the platform API.
var ErrTransport = errors.New("platform transport failure")

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithBearerToken sets an Authorization header on every request.
func WithBearerToken(token string) Option {
	return WithHeaderProvider(func() map[string]string {
		return map[string]string{"Authorization": "Bearer " + token}
	})
}

// WithRetry sets the number of extra attempts for retryable calls.
func WithRetry(n int) Option {
	return func(c *Client) { c.retryMax = n }
}

// WithDialer replaces the TCP dialer, mostly for in-memory tests.
func WithDialer(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 10 * time.Second,
		retryMax:       2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mentions returns mentions with an id greater than sinceID, in whatever order the API uses.
func (c *Client) Mentions(ctx context.Context, sinceID int64) ([]Mention, error) {
	var out []Mention
	path := "/mentions?since_id=" + strconv.FormatInt(sinceID, 10)
	if err := c.do(ctx, call{method: fasthttp.MethodGet, path: path, out: &out, retry: true}); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadMedia sends the file at path and returns the platform media id.
func (c *Client) UploadMedia(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read media %s: %w", path, err)
	}
	var resp mediaResponse
	err = c.do(ctx, call{
		method:      fasthttp.MethodPost,
		path:        "/media",
		body:        data,
		contentType: http.DetectContentType(data),
		out:         &resp,
		retry:       true,
	})
	if err != nil {
		return "", err
	}
	if resp.MediaID == "" {
		return "", fmt.Errorf("%w: upload returned no media id", ErrTransport)
	}
	return resp.MediaID, nil
}

// PostStatus publishes text as a threaded reply. Posts are not retried so a slow
// success is never published twice.
func (c *Client) PostStatus(ctx context.Context, text string, inReplyTo int64, mediaIDs ...string) (int64, error) {
	payload, err := json.Marshal(statusRequest{Text: text, InReplyToID: inReplyTo, MediaIDs: mediaIDs})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}
	var resp statusResponse
	err = c.do(ctx, call{
		method:      fasthttp.MethodPost,
		path:        "/statuses",
		body:        payload,
		contentType: "application/json",
		out:         &resp,
	})
	return resp.ID, err
}

// Reply addresses r.Author, uploads the optional image and posts the status.
func (c *Client) Reply(ctx context.Context, r Reply) error {
	var media []string
	if r.ImagePath != "" {
		id, err := c.UploadMedia(ctx, r.ImagePath)
		if err != nil {
			return err
		}
		media = append(media, id)
	}
	_, err := c.PostStatus(ctx, Address(r.Author, r.Text), r.InReplyTo, media...)
	return err
}

// Address prefixes text with "@author ".
func Address(author, text string) string {
	return "@" + strings.TrimPrefix(author, "@") + " " + text
}

type call struct {
	method      string
	path        string
	body        []byte
	contentType string
	out         any
	retry       bool
}

func (c *Client) do(ctx context.Context, cl call) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(cl.method)
	req.SetRequestURI(c.baseURL + cl.path)
	if cl.contentType != "" {
		req.Header.SetContentType(cl.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if cl.body != nil {
		req.SetBody(cl.body)
	}

	attempts := 1
	if cl.retry && c.retryMax > 0 {
		attempts += c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("%w: %s %s: %v", ErrTransport, cl.method, cl.path, err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			lastErr = fmt.Errorf("%w: %s %s: status=%d body=%s", ErrTransport, cl.method, cl.path, status, truncate(string(resp.Body()), 512))
			if !shouldRetryStatus(status) {
				return lastErr
			}
		} else {
			if cl.out != nil {
				if err := json.Unmarshal(resp.Body(), cl.out); err != nil {
					return fmt.Errorf("%w: decode response: %v", ErrTransport, err)
				}
			}
			return nil
		}

		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
