package boardimage

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/chess"
	"github.com/valyala/fasthttp"
)

// Fetcher downloads board pictures from a FEN-to-image service: GET <base>/<piece placement>.
type Fetcher struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
	dir     string
}

type FetcherOption func(*Fetcher)

func WithDialer(dial fasthttp.DialFunc) FetcherOption {
	return func(f *Fetcher) { f.http.Dial = dial }
}

func NewFetcher(baseURL string, timeout time.Duration, dir string, opts ...FetcherOption) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	f := &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fasthttp.Client{ReadTimeout: timeout, WriteTimeout: timeout},
		timeout: timeout,
		dir:     dir,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Fetch(ctx context.Context, fen string) (*Image, error) {
	placement := chess.Placement(fen)
	if placement == "" {
		return nil, fmt.Errorf("empty fen")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(f.baseURL + "/" + placement)

	deadline := time.Now().Add(f.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := f.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("%w: image request: %v", ErrTransport, err)
	}
	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: image request: status=%d", ErrTransport, status)
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: image request: empty body", ErrTransport)
	}
	return writeTemp(f.dir, extensionFor(string(resp.Header.ContentType())), body)
}

func extensionFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".jpg"
	}
	switch mt {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
