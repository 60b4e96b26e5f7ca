package esplora

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tdex-network/unitswap/pkg/circuitbreaker"
	"github.com/tdex-network/unitswap/pkg/explorer"
	"go.uber.org/ratelimit"
)

const (
	defaultRequestsPerSecond = 10
	defaultTimeout           = 15 * time.Second
	maxBodySize              = 4 << 20
)

type esplora struct {
	apiURL  string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
}

// NewService returns a new esplora service as an explorer.Service interface.
// Requests are throttled to requestsPerSecond and go through a circuit
// breaker that opens when the explorer keeps failing.
func NewService(apiURL string, requestsPerSecond int) (explorer.Service, error) {
	apiURL = strings.TrimSuffix(strings.TrimSpace(apiURL), "/")
	if apiURL == "" {
		return nil, fmt.Errorf("missing esplora url")
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}

	service := &esplora{
		apiURL:  apiURL,
		client:  &http.Client{Timeout: defaultTimeout},
		cb:      circuitbreaker.NewCircuitBreaker("esplora"),
		limiter: ratelimit.New(requestsPerSecond),
	}

	if err := service.healthCheck(); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}

	return service, nil
}

func (e *esplora) healthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	_, err := e.GetBlockHeight(ctx)
	return err
}

type response struct {
	status int
	body   string
}

// request performs the http call. Only failures to reach the explorer and
// 5xx responses count as circuit breaker failures, any other status is
// returned to the caller to be interpreted.
func (e *esplora) request(
	ctx context.Context, method, path, body string,
) (*response, error) {
	e.limiter.Take()

	res, err := e.cb.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, e.apiURL+path, reader)
		if err != nil {
			return nil, err
		}
		if body != "" {
			req.Header.Set("Content-Type", "text/plain")
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		buf, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, err
		}
		r := &response{resp.StatusCode, strings.TrimSpace(string(buf))}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("status %d: %s", r.status, r.body)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", explorer.ErrUnavailable, err)
	}
	return res.(*response), nil
}

func (e *esplora) get(ctx context.Context, path string) (string, error) {
	resp, err := e.request(ctx, http.MethodGet, path, "")
	if err != nil {
		return "", err
	}
	switch resp.status {
	case http.StatusOK:
		return resp.body, nil
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", explorer.ErrNotFound, path)
	case http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: rate limited", explorer.ErrUnavailable)
	default:
		return "", fmt.Errorf("%w: status %d: %s", explorer.ErrUnavailable, resp.status, resp.body)
	}
}
