// Package oracle reads settlement prices from the Pyth Hermes price service
// and keeps a local history of readings in the price cache.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// DefaultHermesURL is the public Pyth Hermes endpoint.
const DefaultHermesURL = "https://hermes.pyth.network"

// hermesPrice is one price object as returned by Hermes. Numeric fields
// arrive as strings.
type hermesPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type hermesParsed struct {
	ID    string      `json:"id"`
	Price hermesPrice `json:"price"`
}

type hermesResponse struct {
	Parsed []hermesParsed `json:"parsed"`
}

// PythClient is the REST client for the Pyth Hermes API. It implements
// domain.Oracle.
type PythClient struct {
	baseURL    string
	httpClient *http.Client
	maxAge     time.Duration
}

// NewPythClient creates a Hermes client. Readings published more than maxAge
// away from the requested time are rejected.
func NewPythClient(baseURL string, maxAge time.Duration) *PythClient {
	if baseURL == "" {
		baseURL = DefaultHermesURL
	}
	return &PythClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxAge:     maxAge,
	}
}

// Latest returns the newest readings for the given feed ids.
func (c *PythClient) Latest(ctx context.Context, refs ...string) ([]domain.PriceReading, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	readings, err := c.fetch(ctx, "/v2/updates/price/latest", refs)
	if err != nil {
		return nil, fmt.Errorf("oracle/pyth: latest: %w", err)
	}
	return readings, nil
}

// PriceAt returns the first reading Hermes has at or after ts. Hermes
// answers historical queries with the next published update, so the reading
// must be for ref, not earlier than ts, and within maxAge after it.
func (c *PythClient) PriceAt(ctx context.Context, ref string, ts int64) (domain.PriceReading, error) {
	readings, err := c.fetch(ctx, "/v2/updates/price/"+strconv.FormatInt(ts, 10), []string{ref})
	if err != nil {
		return domain.PriceReading{}, fmt.Errorf("oracle/pyth: price %s at %d: %w", ref, ts, err)
	}
	want := domain.NormalizeFeedID(ref)
	for _, r := range readings {
		if r.FeedID != want {
			continue
		}
		if r.PublishTime < ts {
			return domain.PriceReading{}, fmt.Errorf("oracle/pyth: price %s at %d: %w: published early at %d",
				ref, ts, domain.ErrInvalidPrice, r.PublishTime)
		}
		if c.maxAge > 0 && time.Duration(r.PublishTime-ts)*time.Second > c.maxAge {
			return domain.PriceReading{}, fmt.Errorf("oracle/pyth: price %s at %d: %w: published at %d",
				ref, ts, domain.ErrInvalidPrice, r.PublishTime)
		}
		return r, nil
	}
	return domain.PriceReading{}, fmt.Errorf("oracle/pyth: price %s at %d: %w: feed missing from response",
		ref, ts, domain.ErrInvalidPrice)
}

func (c *PythClient) fetch(ctx context.Context, path string, refs []string) ([]domain.PriceReading, error) {
	params := url.Values{}
	for _, ref := range refs {
		params.Add("ids[]", strings.TrimPrefix(ref, "0x"))
	}
	params.Set("parsed", "true")
	params.Set("encoding", "hex")

	body, err := c.doGet(ctx, path+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp hermesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrInvalidPrice, err)
	}
	if len(resp.Parsed) == 0 {
		return nil, fmt.Errorf("%w: empty response", domain.ErrInvalidPrice)
	}

	out := make([]domain.PriceReading, 0, len(resp.Parsed))
	for _, p := range resp.Parsed {
		r, err := p.reading()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (p hermesParsed) reading() (domain.PriceReading, error) {
	price, err := strconv.ParseInt(p.Price.Price, 10, 64)
	if err != nil {
		return domain.PriceReading{}, fmt.Errorf("%w: feed %s: bad price %q", domain.ErrInvalidPrice, p.ID, p.Price.Price)
	}
	conf, err := strconv.ParseUint(p.Price.Conf, 10, 64)
	if err != nil {
		return domain.PriceReading{}, fmt.Errorf("%w: feed %s: bad conf %q", domain.ErrInvalidPrice, p.ID, p.Price.Conf)
	}
	if price == 0 || p.Price.PublishTime <= 0 {
		return domain.PriceReading{}, fmt.Errorf("%w: feed %s: zero price or publish time", domain.ErrInvalidPrice, p.ID)
	}
	return domain.PriceReading{
		FeedID:      domain.NormalizeFeedID(p.ID),
		Price:       price,
		Conf:        conf,
		Expo:        p.Price.Expo,
		PublishTime: p.Price.PublishTime,
	}, nil
}

func (c *PythClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		// Unknown feed or no update for the requested time.
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrInvalidPrice, resp.StatusCode, truncate(body))
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body))
	}
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

var _ domain.Oracle = (*PythClient)(nil)
