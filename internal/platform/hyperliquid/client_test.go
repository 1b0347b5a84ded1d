package hyperliquid

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

func infoServer(t *testing.T, handler func(requestType string, body map[string]any) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/info", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requestType, _ := body["type"].(string)

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(handler(requestType, body)))
	}))
}

func TestOpenPositions(t *testing.T) {
	srv := infoServer(t, func(requestType string, body map[string]any) any {
		require.Equal(t, "clearinghouseState", requestType)
		require.Equal(t, "0xabc", body["user"])
		return map[string]any{
			"assetPositions": []any{
				map[string]any{
					"type": "oneWay",
					"position": map[string]any{
						"coin":          "ETH",
						"szi":           "2.5",
						"entryPx":       "3000.0",
						"positionValue": "7750.0",
						"unrealizedPnl": "250.0",
						"liquidationPx": "2500.0",
						"marginUsed":    "1550.0",
						"leverage":      map[string]any{"type": "cross", "value": 5},
						"cumFunding":    map[string]any{"sinceOpen": "-1.25"},
					},
				},
				map[string]any{
					"type": "oneWay",
					"position": map[string]any{
						"coin":          "BTC",
						"szi":           "-0.1",
						"entryPx":       "60000",
						"positionValue": "6100",
						"unrealizedPnl": "-100",
						"leverage":      map[string]any{"type": "isolated", "value": 10},
					},
				},
				// Flat entries are skipped.
				map[string]any{
					"type":     "oneWay",
					"position": map[string]any{"coin": "SOL", "szi": "0"},
				},
			},
			"time": 1700000000000,
		}
	})
	defer srv.Close()

	client := NewClient(srv.URL, "0xabc")
	positions, err := client.OpenPositions(t.Context())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	eth := positions[0]
	assert.Equal(t, "ETH", eth.MarketID)
	assert.Equal(t, "LONG", eth.Side)
	assert.Equal(t, "2.5", eth.Size)
	assert.Equal(t, "3100", eth.MarkPrice) // 7750 / 2.5
	assert.Equal(t, "1550.0", eth.Margin)
	assert.Equal(t, "5", eth.Leverage)
	assert.Equal(t, "-1.25", eth.Funding)

	btc := positions[1]
	assert.Equal(t, "SHORT", btc.Side)
	assert.Equal(t, "61000", btc.MarkPrice) // 6100 / |-0.1|
}

func TestFills(t *testing.T) {
	srv := infoServer(t, func(requestType string, body map[string]any) any {
		require.Equal(t, "userFillsByTime", requestType)
		require.EqualValues(t, 1700000000000, body["startTime"])
		return []any{
			map[string]any{
				"coin": "ETH", "px": "3000.5", "sz": "1.5", "side": "B",
				"time": 1700000100000, "tid": 42,
			},
			map[string]any{
				"coin": "ETH", "px": "3100", "sz": "1.5", "side": "A",
				"time": 1700000200000, "tid": 43,
			},
			// Malformed price is dropped, not fatal.
			map[string]any{
				"coin": "BTC", "px": "oops", "sz": "1", "side": "B",
				"time": 1700000300000, "tid": 44,
			},
		}
	})
	defer srv.Close()

	client := NewClient(srv.URL, "0xabc")
	fills, err := client.Fills(t.Context(), time.UnixMilli(1700000000000))
	require.NoError(t, err)
	require.Len(t, fills, 2)

	buy := fills[0]
	assert.Equal(t, "hl-42", buy.ID)
	assert.Equal(t, "ETH", buy.Symbol)
	assert.Equal(t, domain.FillSideBuy, buy.Side)
	assert.InDelta(t, 3000.5, buy.Price, 1e-9)
	assert.Equal(t, time.UnixMilli(1700000100000).UTC(), buy.Timestamp)
	assert.Equal(t, "hyperliquid", buy.Exchange)

	assert.Equal(t, domain.FillSideSell, fills[1].Side)
}

func TestFillsWithoutCursorUsesFullHistory(t *testing.T) {
	srv := infoServer(t, func(requestType string, body map[string]any) any {
		require.Equal(t, "userFills", requestType)
		_, hasStart := body["startTime"]
		require.False(t, hasStart)
		return []any{}
	})
	defer srv.Close()

	client := NewClient(srv.URL, "0xabc")
	fills, err := client.Fills(t.Context(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, fills)
}

func TestInfoNonOKStatusIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "0xabc")
	_, err := client.OpenPositions(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestResolveCanonicalizesAgainstUniverse(t *testing.T) {
	metaCalls := 0
	srv := infoServer(t, func(requestType string, _ map[string]any) any {
		require.Equal(t, "meta", requestType)
		metaCalls++
		return map[string]any{
			"universe": []any{
				map[string]any{"name": "ETH", "szDecimals": 4, "maxLeverage": 50},
				map[string]any{"name": "kPEPE", "szDecimals": 0, "maxLeverage": 10},
			},
		}
	})
	defer srv.Close()

	client := NewClient(srv.URL, "0xabc")

	symbol, err := client.Resolve(t.Context(), "eth")
	require.NoError(t, err)
	assert.Equal(t, "ETH", symbol)

	symbol, err = client.Resolve(t.Context(), "KPEPE")
	require.NoError(t, err)
	assert.Equal(t, "kPEPE", symbol)

	// Unknown coins pass through unchanged.
	symbol, err = client.Resolve(t.Context(), "DOGE2")
	require.NoError(t, err)
	assert.Equal(t, "DOGE2", symbol)

	// The universe is fetched once and served from cache after that.
	assert.Equal(t, 1, metaCalls)
}

func TestResolveFallsBackWhenUniverseUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "0xabc")
	symbol, err := client.Resolve(t.Context(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, "ETH", symbol)
}
