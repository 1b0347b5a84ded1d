// Package hyperliquid is the REST client for the Hyperliquid info API. It
// backs the live feed overlay and the fill syncer.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

// DefaultBaseURL is the production info API endpoint.
const DefaultBaseURL = "https://api.hyperliquid.xyz"

const (
	maxRetries  = 3
	backoffBase = 2 * time.Second
)

// universeRefresh is how long the cached asset universe stays fresh. Listings
// change rarely; a stale map only delays canonicalization of new coins.
const universeRefresh = time.Hour

// Client is the REST client for the Hyperliquid info API. All info queries
// are POSTs to /info with a JSON body whose "type" field selects the query.
type Client struct {
	baseURL     string
	userAddress string
	httpClient  *http.Client

	mu        sync.Mutex
	symbols   map[string]string // upper(coin) -> canonical universe name
	symbolsAt time.Time
}

// NewClient creates a new Hyperliquid info client for the given account
// address. An empty baseURL selects the production endpoint.
func NewClient(baseURL, userAddress string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		userAddress: userAddress,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// info performs one /info query, retrying on 429 with exponential backoff.
func (c *Client) info(ctx context.Context, requestType string, params map[string]any, out any) error {
	body := map[string]any{"type": requestType}
	for k, v := range params {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("hyperliquid: marshal %s request: %w", requestType, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoffBase * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("hyperliquid: create %s request: %w", requestType, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("hyperliquid: %s request: %w", requestType, err)
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return fmt.Errorf("hyperliquid: read %s response: %w", requestType, readErr)
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("hyperliquid: decode %s response: %w", requestType, err)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("hyperliquid: %s rate limited", requestType)
			continue
		default:
			return fmt.Errorf("hyperliquid: %s returned status %d", requestType, resp.StatusCode)
		}
	}
	return fmt.Errorf("hyperliquid: %s failed after %d attempts: %w", requestType, maxRetries, lastErr)
}

// OpenPositions returns the account's open perpetual positions. A negative
// signed size means a short. Implements domain.LiveFeed.
func (c *Client) OpenPositions(ctx context.Context) ([]domain.LivePosition, error) {
	var state clearinghouseState
	err := c.info(ctx, "clearinghouseState", map[string]any{"user": c.userAddress}, &state)
	if err != nil {
		return nil, err
	}

	var out []domain.LivePosition
	for _, ap := range state.AssetPositions {
		p := ap.Position

		szi, err := strconv.ParseFloat(strings.TrimSpace(p.Szi), 64)
		if err != nil || szi == 0 {
			continue
		}
		side := string(domain.PositionSideLong)
		if szi < 0 {
			side = string(domain.PositionSideShort)
		}

		out = append(out, domain.LivePosition{
			MarketID:         p.Coin,
			Side:             side,
			Size:             p.Szi,
			EntryPrice:       p.EntryPx,
			PositionValue:    p.PositionValue,
			MarkPrice:        markPrice(p),
			LiquidationPrice: p.LiquidationPx,
			Margin:           p.MarginUsed,
			Leverage:         strconv.Itoa(p.Leverage.Value),
			Funding:          p.CumFunding.SinceOpen,
			UnrealizedPnL:    p.UnrealizedPnl,
		})
	}
	return out, nil
}

// markPrice derives the mark price from position value and signed size; the
// clearinghouse state does not report it directly.
func markPrice(p position) string {
	szi, err := strconv.ParseFloat(strings.TrimSpace(p.Szi), 64)
	if err != nil || szi == 0 {
		return ""
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(p.PositionValue), 64)
	if err != nil {
		return ""
	}
	if szi < 0 {
		szi = -szi
	}
	return strconv.FormatFloat(value/szi, 'f', -1, 64)
}

// Fills returns the account's executed fills since the given time, oldest
// first, mapped to domain fills. The exchange's trade ID keys idempotent
// re-syncs.
func (c *Client) Fills(ctx context.Context, since time.Time) ([]domain.Fill, error) {
	params := map[string]any{"user": c.userAddress}
	requestType := "userFills"
	if !since.IsZero() {
		requestType = "userFillsByTime"
		params["startTime"] = since.UnixMilli()
	}

	var raw []userFill
	if err := c.info(ctx, requestType, params, &raw); err != nil {
		return nil, err
	}

	fills := make([]domain.Fill, 0, len(raw))
	for _, uf := range raw {
		price, err := strconv.ParseFloat(strings.TrimSpace(uf.Px), 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(strings.TrimSpace(uf.Sz), 64)
		if err != nil {
			continue
		}

		side := domain.FillSideBuy
		if uf.Side != "B" {
			side = domain.FillSideSell
		}

		fills = append(fills, domain.Fill{
			ID:        "hl-" + strconv.FormatInt(uf.Tid, 10),
			Symbol:    uf.Coin,
			MarketID:  uf.Coin,
			Side:      side,
			Price:     price,
			Quantity:  qty,
			Timestamp: time.UnixMilli(uf.Time).UTC(),
			Exchange:  "hyperliquid",
		})
	}
	return fills, nil
}

// Resolve maps a market identifier to a trading symbol. On Hyperliquid the
// coin name is the symbol, so resolution canonicalizes the identifier's
// casing against the perpetual universe (coins like kPEPE are mixed case)
// and falls back to the raw identifier for unknown coins or when the
// universe cannot be fetched.
func (c *Client) Resolve(ctx context.Context, marketID string) (string, error) {
	if name, ok := c.canonicalSymbol(ctx, marketID); ok {
		return name, nil
	}
	return marketID, nil
}

// canonicalSymbol looks the identifier up in the cached universe, refreshing
// the cache when stale. A failed refresh keeps serving the previous map.
func (c *Client) canonicalSymbol(ctx context.Context, marketID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.symbols == nil || time.Since(c.symbolsAt) > universeRefresh {
		names, err := c.Meta(ctx)
		if err == nil {
			m := make(map[string]string, len(names))
			for _, n := range names {
				m[strings.ToUpper(n)] = n
			}
			c.symbols = m
			c.symbolsAt = time.Now()
		} else if c.symbols == nil {
			return "", false
		}
	}

	name, ok := c.symbols[strings.ToUpper(marketID)]
	return name, ok
}

// Meta returns the tradable perpetual universe.
func (c *Client) Meta(ctx context.Context) ([]string, error) {
	var u universe
	if err := c.info(ctx, "meta", nil, &u); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(u.Universe))
	for _, item := range u.Universe {
		names = append(names, item.Name)
	}
	return names, nil
}

// Compile-time interface checks.
var (
	_ domain.LiveFeed       = (*Client)(nil)
	_ domain.SymbolResolver = (*Client)(nil)
)
