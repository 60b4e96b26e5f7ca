package ord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tdex-network/unitswap/pkg/circuitbreaker"
	"github.com/tdex-network/unitswap/pkg/runestone"
	"go.uber.org/ratelimit"
)

var (
	// ErrOutputNotFound is returned when the ord server doesn't know the
	// requested output.
	ErrOutputNotFound = errors.New("output not found")
	// ErrNotFound is returned when the ord server doesn't know the requested
	// inscription or rune.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when the ord server can't be reached.
	ErrUnavailable = errors.New("ord server unavailable")

	errNotFound = errors.New("status 404")
)

const (
	defaultRequestsPerSecond = 10
	defaultTimeout           = 15 * time.Second
)

// Rune is the balance of a rune held by an output.
type Rune struct {
	Name         string
	Amount       uint64
	Divisibility int
	Symbol       string
}

// Inscription is the location of an inscription: the output holding it and
// the offset of its sat within the output.
type Inscription struct {
	ID     string
	TxID   string
	VOut   uint32
	Offset uint64
}

// RuneEntry is the etching of a rune.
type RuneEntry struct {
	ID           runestone.RuneID
	Name         string
	Divisibility int
}

// Output is the content of an output as indexed by the ord server.
type Output struct {
	Value        uint64
	Indexed      bool
	Spent        bool
	Inscriptions []string
	Runes        []Rune
}

// Client fetches the inscriptions and runes carried by outputs from an ord
// server json api.
type Client struct {
	url     string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
}

// NewClient returns a client for the ord server at the given url.
func NewClient(serverURL string, requestsPerSecond int) (*Client, error) {
	serverURL = strings.TrimSuffix(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return nil, fmt.Errorf("missing ord server url")
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	return &Client{
		url:     serverURL,
		client:  &http.Client{Timeout: defaultTimeout},
		cb:      circuitbreaker.NewCircuitBreaker("ord"),
		limiter: ratelimit.New(requestsPerSecond),
	}, nil
}

// GetOutput returns the content of the given output.
func (c *Client) GetOutput(
	ctx context.Context, txid string, vout uint32,
) (*Output, error) {
	body, err := c.get(ctx, fmt.Sprintf("/output/%s:%d", txid, vout))
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: %s:%d", ErrOutputNotFound, txid, vout)
		}
		return nil, err
	}

	out := &output{}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("%w: invalid output %s:%d: %s", ErrUnavailable, txid, vout, err)
	}
	return out.parse()
}

// GetInscription returns the location of the given inscription.
func (c *Client) GetInscription(ctx context.Context, id string) (*Inscription, error) {
	body, err := c.get(ctx, "/inscription/"+url.PathEscape(id))
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: inscription %s", ErrNotFound, id)
		}
		return nil, err
	}

	in := &inscription{}
	if err := json.Unmarshal(body, in); err != nil {
		return nil, fmt.Errorf("%w: invalid inscription %s: %s", ErrUnavailable, id, err)
	}
	return in.parse(id)
}

// GetRune returns the etching details of the rune with the given name.
func (c *Client) GetRune(ctx context.Context, name string) (*RuneEntry, error) {
	body, err := c.get(ctx, "/rune/"+url.PathEscape(name))
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: rune %s", ErrNotFound, name)
		}
		return nil, err
	}

	r := &runeEntry{}
	if err := json.Unmarshal(body, r); err != nil {
		return nil, fmt.Errorf("%w: invalid rune %s: %s", ErrUnavailable, name, err)
	}
	return r.parse()
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	c.limiter.Take()

	res, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}
		return &httpResult{resp.StatusCode, body}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	r := res.(*httpResult)
	switch r.status {
	case http.StatusOK:
		return r.body, nil
	case http.StatusNotFound:
		return nil, errNotFound
	default:
		return nil, fmt.Errorf(
			"%w: status %d: %s", ErrUnavailable, r.status, strings.TrimSpace(string(r.body)),
		)
	}
}

type httpResult struct {
	status int
	body   []byte
}
