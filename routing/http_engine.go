package routing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
)

// HTTPEngine talks to a Valhalla compatible routing service over HTTP.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEngine creates an engine rooted at baseURL.
func NewHTTPEngine(baseURL string, client *http.Client) (*HTTPEngine, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("engine url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("engine url %q: unsupported scheme", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPEngine{baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

// HTTPEngineFactory returns a factory that builds an HTTPEngine. serviceURL
// wins over the listen address found in the engine configuration.
func HTTPEngineFactory(serviceURL string, client *http.Client) EngineFactory {
	return func(_ context.Context, cfg EngineConfig) (Engine, error) {
		base := serviceURL
		if base == "" {
			base = cfg.ServiceURL()
		}
		if base == "" {
			return nil, errors.New("no engine service url configured")
		}
		return NewHTTPEngine(base, client)
	}
}

func (e *HTTPEngine) Route(ctx context.Context, opts Options) (Response, error) {
	return e.post(ctx, routeEndpoint, opts)
}

func (e *HTTPEngine) Matrix(ctx context.Context, opts Options) (Response, error) {
	return e.post(ctx, matrixEndpoint, opts)
}

func (e *HTTPEngine) post(ctx context.Context, endpoint string, opts Options) (Response, error) {
	payload, err := sonic.Marshal(opts)
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLength))
	if err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, truncate(body, 256))
	}

	ct := resp.Header.Get("Content-Type")
	return Response{Kind: classify(ct), ContentType: ct, Body: body}, nil
}

func classify(contentType string) ResponseKind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ResponseUnknown
	}
	switch mt {
	case "application/json":
		return ResponseJSON
	case "application/x-protobuf", "application/octet-stream":
		return ResponsePBF
	default:
		return ResponseUnknown
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
