package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"flotta/internal/core"
	"flotta/internal/metrics"
	ports "flotta/internal/sheets"
)

const (
	readRange        = "A:Z"
	headerRange      = "1:1"
	defaultRPS       = 1.0
	defaultBurst     = 5
	rateLimitBackoff = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	SpreadsheetID string
	// SheetName is the tab holding usage rows; empty selects the first tab.
	SheetName         string
	RequestsPerSecond float64
	Burst             int
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	limiter       *rate.Limiter

	mu        sync.Mutex
	sheetName string
	retryAt   time.Time
}

// Ensure interface conformance
var _ ports.Store = (*Client)(nil)

// New creates a Sheets client. opts carry credentials (see ClientOptions) or,
// in tests, an endpoint and HTTP client.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, fmt.Errorf("%w: missing GOOGLE_SPREADSHEET_ID", core.ErrConfiguration)
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}

	base := []goption.ClientOption{
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}
	svc, err := gsheet.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		sheetName:     strings.TrimSpace(cfg.SheetName),
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}, nil
}

// NewHTTPClient returns an HTTP client with connection pooling tuned for the
// Sheets API.
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// FetchAllRecords reads the whole usage tab once.
func (c *Client) FetchAllRecords(ctx context.Context) (table core.RawTable, err error) {
	defer func(start time.Time) { metrics.ObserveStore("sheets", "fetch_all", start, err) }(time.Now())

	values, err := c.readValues(ctx, readRange)
	if err != nil {
		return core.RawTable{}, core.StoreUnavailable("fetch records", err)
	}
	table = parseValues(values)
	slog.DebugContext(ctx, "Fetched usage sheet", "rows", len(table.Rows), "columns", table.Columns)
	return table, nil
}

// FetchDistinctPlates returns every plate found in the TARGA column.
func (c *Client) FetchDistinctPlates(ctx context.Context) ([]string, error) {
	table, err := c.FetchAllRecords(ctx)
	if err != nil {
		return nil, err
	}
	if !table.HasColumn(core.ColumnPlate) {
		return nil, &core.MissingColumnsError{Missing: []string{core.ColumnPlate}}
	}
	return DistinctPlates(table), nil
}

// DistinctPlates collects the normalized, sorted, de-duplicated plates of a table.
func DistinctPlates(table core.RawTable) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range table.Rows {
		if r.Plate == nil {
			continue
		}
		p := core.NormalizePlate(fmt.Sprint(r.Plate))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AppendRecord writes rec as a new row, placing each value under its header.
// An empty tab gets the default header first.
func (c *Client) AppendRecord(ctx context.Context, rec core.VehicleUsageRecord) (ref string, err error) {
	defer func(start time.Time) { metrics.ObserveStore("sheets", "append", start, err) }(time.Now())

	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrValidation, err)
	}

	sheet, err := c.sheet(ctx)
	if err != nil {
		return "", core.StoreUnavailable("append record", err)
	}

	headerRows, err := c.readValues(ctx, headerRange)
	if err != nil {
		return "", core.StoreUnavailable("read header", err)
	}
	var headers []string
	if len(headerRows) > 0 {
		headers = toStrings(headerRows[0])
	}
	if len(headers) == 0 {
		if err := c.writeHeader(ctx, sheet); err != nil {
			return "", core.StoreUnavailable("write header", err)
		}
		headers = toStrings(defaultHeader)
	}

	row, err := buildRow(headers, rec)
	if err != nil {
		return "", err
	}

	if err := c.wait(ctx); err != nil {
		return "", core.StoreUnavailable("append record", err)
	}
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, a1(sheet, "A1"), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		c.noteRateLimit(err)
		return "", core.StoreUnavailable("append record", err)
	}

	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Usage row appended", "range", ref, "plate", rec.Plate, "driver", rec.Driver)
	return ref, nil
}

func (c *Client) writeHeader(ctx context.Context, sheet string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	vr := &gsheet.ValueRange{Values: [][]any{defaultHeader}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, a1(sheet, "A1"), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		c.noteRateLimit(err)
		return err
	}
	slog.InfoContext(ctx, "Wrote header to empty sheet", "sheet", sheet)
	return nil
}

// readValues reads rng of the usage tab. Dates come back as serial numbers
// and numbers unformatted, both as float64.
func (c *Client) readValues(ctx context.Context, rng string) ([][]any, error) {
	sheet, err := c.sheet(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, a1(sheet, rng)).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).Do()
	if err != nil {
		c.noteRateLimit(err)
		return nil, fmt.Errorf("read %s: %w", a1(sheet, rng), err)
	}
	return resp.Values, nil
}

// sheet returns the configured tab name, resolving the first tab on demand.
func (c *Client) sheet(ctx context.Context) (string, error) {
	c.mu.Lock()
	name := c.sheetName
	c.mu.Unlock()
	if name != "" {
		return name, nil
	}

	if err := c.wait(ctx); err != nil {
		return "", err
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		c.noteRateLimit(err)
		return "", fmt.Errorf("resolve first sheet: %w", err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return "", errors.New("spreadsheet has no sheets")
	}
	name = ss.Sheets[0].Properties.Title

	c.mu.Lock()
	c.sheetName = name
	c.mu.Unlock()
	slog.InfoContext(ctx, "Resolved usage sheet", "sheet", name)
	return name, nil
}

// wait blocks on the rate limiter and on any backoff after a 429.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	retryAt := c.retryAt
	c.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) noteRateLimit(err error) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusTooManyRequests {
		return
	}
	c.mu.Lock()
	c.retryAt = time.Now().Add(rateLimitBackoff)
	c.mu.Unlock()
	slog.Warn("Sheets API rate limited, backing off", "backoff", rateLimitBackoff)
}
