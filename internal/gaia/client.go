package gaia

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/clusterscan/pkg/models"
)

// ErrUpstream wraps every failure talking to the archive.
var ErrUpstream = errors.New("gaia archive request failed")

const (
	// DefaultURL is the synchronous TAP endpoint of the ESA Gaia archive.
	DefaultURL = "https://gea.esac.esa.int/tap-server/tap/sync"

	userAgent    = "clusterscan"
	maxErrorBody = 512
)

// StatusError is returned when the archive answers with a non-2xx status.
type StatusError struct {
	Body string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gaia archive returned %d: %s", e.Code, e.Body)
}

// Unwrap lets errors.Is match ErrUpstream.
func (e *StatusError) Unwrap() error { return ErrUpstream }

// Config holds client configuration.
type Config struct {
	HTTPClient *http.Client  // optional; a client with Timeout is built otherwise
	URL        string        // TAP sync endpoint (default: DefaultURL)
	Shape      string        // region shape for patch fetches (default: CIRCLE)
	RowLimit   int           // TOP n per patch; 0 for no limit
	Timeout    time.Duration // 0 means no timeout
}

// Client fetches observations from a TAP service. It is safe for sequential
// use by a single scanner.
type Client struct {
	http     *http.Client
	url      string
	shape    string
	rowLimit int
}

// NewClient validates cfg and returns a client. An unsupported shape fails
// here, before any request is made.
func NewClient(cfg Config) (*Client, error) {
	shape := cfg.Shape
	if shape == "" {
		shape = ShapeCircle
	}
	shape, err := NormalizeShape(shape)
	if err != nil {
		return nil, err
	}
	if cfg.RowLimit < 0 {
		return nil, fmt.Errorf("row limit %d must not be negative", cfg.RowLimit)
	}

	endpoint := cfg.URL
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("parse tap url: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		http:     hc,
		url:      endpoint,
		shape:    shape,
		rowLimit: cfg.RowLimit,
	}, nil
}

// Fetch returns the observations within the patch's half-width of its centre.
func (c *Client) Fetch(ctx context.Context, patch models.Patch) ([]models.Observation, error) {
	return c.Query(ctx, QueryParams{
		Shape: c.shape,
		RA:    patch.RA,
		Dec:   patch.Dec,
		Size:  patch.HalfWidth,
		Limit: c.rowLimit,
	})
}

// Query builds the ADQL for p, runs it and decodes the rows. Invalid
// parameters fail before any network use.
func (c *Client) Query(ctx context.Context, p QueryParams) ([]models.Observation, error) {
	adql, err := BuildQuery(p)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, adql)
}

// Run executes a raw ADQL query.
func (c *Client) Run(ctx context.Context, adql string) ([]models.Observation, error) {
	form := url.Values{
		"REQUEST": {"doQuery"},
		"LANG":    {"ADQL"},
		"FORMAT":  {"json"},
		"QUERY":   {adql},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	obs, dropped, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	log.Debug().
		Int("rows", len(obs)).
		Int("dropped", dropped).
		Dur("elapsed", time.Since(start)).
		Msg("Gaia query complete")

	return obs, nil
}

// tapResponse is the archive's JSON output format: column metadata followed
// by positional row arrays.
type tapResponse struct {
	Metadata []struct {
		Name string `json:"name"`
	} `json:"metadata"`
	Data [][]json.RawMessage `json:"data"`
}

var requiredColumns = []string{
	"source_id", "ra", "dec", "parallax", "pmra", "pmdec", "phot_g_mean_mag", "bp_rp",
}

var null = []byte("null")

// decodeRows converts a TAP JSON document into observations. Rows with a
// null required value or non-positive parallax are dropped and counted.
func decodeRows(body []byte) ([]models.Observation, int, error) {
	var doc tapResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}

	col := make(map[string]int, len(doc.Metadata))
	for i, m := range doc.Metadata {
		col[strings.ToLower(m.Name)] = i
	}
	idx := make([]int, len(requiredColumns))
	for i, name := range requiredColumns {
		j, ok := col[name]
		if !ok {
			return nil, 0, fmt.Errorf("response missing column %q", name)
		}
		idx[i] = j
	}

	obs := make([]models.Observation, 0, len(doc.Data))
	dropped := 0
	for r, row := range doc.Data {
		var (
			o    models.Observation
			skip bool
		)
		targets := []any{&o.SourceID, &o.RA, &o.Dec, &o.Parallax, &o.PMRA, &o.PMDec, &o.GMag, &o.BPRP}
		for i, j := range idx {
			if j >= len(row) {
				return nil, 0, fmt.Errorf("row %d has %d values, want at least %d", r, len(row), j+1)
			}
			raw := bytes.TrimSpace(row[j])
			if len(raw) == 0 || bytes.Equal(raw, null) {
				skip = true
				break
			}
			if err := json.Unmarshal(raw, targets[i]); err != nil {
				return nil, 0, fmt.Errorf("row %d column %s: %w", r, requiredColumns[i], err)
			}
		}
		if skip || !o.Valid() {
			dropped++
			continue
		}
		obs = append(obs, o)
	}
	return obs, dropped, nil
}
