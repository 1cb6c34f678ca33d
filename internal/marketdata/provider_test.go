package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-sentry/internal/errors"
)

func TestCoinID(t *testing.T) {
	assert.Equal(t, "bitcoin", CoinID("BTC"))
	assert.Equal(t, "bitcoin", CoinID("btc"))
	assert.Equal(t, "ethereum", CoinID("ETH"))
	// Unknown symbols fall back to their lowercase form.
	assert.Equal(t, "pepe", CoinID("PEPE"))
}

func TestCoinGeckoClient_GetPrices(t *testing.T) {
	var gotQuery string
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("x-cg-demo-api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"bitcoin": {"usd": 65000.5, "usd_market_cap": 1.28e12, "usd_24h_vol": 3.1e10},
			"ethereum": {"usd": 3200.25, "usd_market_cap": 3.8e11, "usd_24h_vol": 1.4e10}
		}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient("coingecko", server.URL, "demo-key", zerolog.Nop())
	prices, err := client.GetPrices(context.Background(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	require.Len(t, prices, 2)

	assert.Equal(t, 65000.5, prices["BTC"].Price)
	assert.Equal(t, 3200.25, prices["ETH"].Price)
	assert.InDelta(t, 3.1e10, prices["BTC"].Volume24h, 1)
	assert.False(t, prices["BTC"].FetchedAt.IsZero())

	assert.Contains(t, gotQuery, "vs_currencies=usd")
	assert.Contains(t, gotQuery, "bitcoin")
	assert.Equal(t, "demo-key", gotKey)
}

func TestCoinGeckoClient_GetPriceUnknownSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient("coingecko", server.URL, "", zerolog.Nop())
	_, err := client.GetPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, errors.IsPermanent(err))
}

func TestCoinGeckoClient_StatusTaxonomy(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		rateLimited bool
		permanent   bool
	}{
		{"too many requests", http.StatusTooManyRequests, true, false},
		{"server error", http.StatusBadGateway, false, false},
		{"client error", http.StatusNotFound, false, true},
		{"unauthorized", http.StatusUnauthorized, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := NewCoinGeckoClient("coingecko", server.URL, "", zerolog.Nop())
			_, err := client.GetPrices(context.Background(), []string{"BTC"})
			require.Error(t, err)

			var ue *errors.UpstreamError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, tc.status, ue.StatusCode)
			assert.Equal(t, tc.rateLimited, errors.IsRateLimited(err))
			assert.Equal(t, tc.permanent, errors.IsPermanent(err))
		})
	}
}

func TestCoinGeckoClient_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient("coingecko", server.URL, "", zerolog.Nop())
	_, err := client.GetPrices(context.Background(), []string{"BTC"})
	require.Error(t, err)
	assert.True(t, errors.IsPermanent(err), "malformed payloads are not retryable")
}
