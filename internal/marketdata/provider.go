package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"portfolio-sentry/internal/errors"
	"portfolio-sentry/internal/models"
)

// Provider is an upstream market-data API identity. Implementations
// normalize the provider's response schema into models.PriceData and map
// HTTP failures onto the closed upstream error taxonomy.
type Provider interface {
	Name() string
	GetPrice(ctx context.Context, symbol string) (models.PriceData, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]models.PriceData, error)
}

// coinIDs maps common asset symbols to CoinGecko coin ids. Symbols outside
// the map fall back to their lowercase form.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"AVAX":  "avalanche-2",
	"USDT":  "tether",
	"USDC":  "usd-coin",
}

// CoinGeckoClient fetches prices from the CoinGecko simple-price API.
type CoinGeckoClient struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewCoinGeckoClient creates a CoinGecko market-data client.
func NewCoinGeckoClient(name, baseURL, apiKey string, log zerolog.Logger) *CoinGeckoClient {
	return &CoinGeckoClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("provider", name).Logger(),
	}
}

// Name returns the API identity of this provider.
func (c *CoinGeckoClient) Name() string {
	return c.name
}

// CoinID converts an asset symbol to the CoinGecko coin id.
func CoinID(symbol string) string {
	if id, ok := coinIDs[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

// GetPrice fetches the current price record for a single symbol.
func (c *CoinGeckoClient) GetPrice(ctx context.Context, symbol string) (models.PriceData, error) {
	prices, err := c.GetPrices(ctx, []string{symbol})
	if err != nil {
		return models.PriceData{}, err
	}
	data, ok := prices[symbol]
	if !ok {
		return models.PriceData{}, errors.NewUpstreamError(
			c.name, errors.UpstreamPermanent, 0,
			fmt.Sprintf("no data for symbol %s", symbol), nil)
	}
	return data, nil
}

// GetPrices fetches current price records for all symbols in one call.
func (c *CoinGeckoClient) GetPrices(ctx context.Context, symbols []string) (map[string]models.PriceData, error) {
	ids := make([]string, 0, len(symbols))
	idToSymbol := make(map[string]string, len(symbols))
	for _, s := range symbols {
		id := CoinID(s)
		ids = append(ids, id)
		idToSymbol[id] = s
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")
	params.Set("include_market_cap", "true")
	params.Set("include_24hr_vol", "true")

	endpoint := c.baseURL + "/simple/price?" + params.Encode()
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var raw map[string]map[string]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.NewUpstreamError(c.name, errors.UpstreamPermanent, 0, "malformed price response", err)
	}

	now := time.Now()
	prices := make(map[string]models.PriceData, len(raw))
	for id, fields := range raw {
		symbol, ok := idToSymbol[id]
		if !ok {
			continue
		}
		prices[symbol] = models.PriceData{
			Symbol:    symbol,
			Price:     fields["usd"],
			Volume24h: fields["usd_24h_vol"],
			MarketCap: fields["usd_market_cap"],
			FetchedAt: now,
		}
	}
	return prices, nil
}

func (c *CoinGeckoClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewUpstreamError(c.name, errors.UpstreamPermanent, 0, "building request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logCall(endpoint, start, err)
		return nil, errors.NewUpstreamError(c.name, errors.UpstreamTransient, 0, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logCall(endpoint, start, err)
		return nil, errors.NewUpstreamError(c.name, errors.UpstreamTransient, resp.StatusCode, "reading response", err)
	}

	c.logCall(endpoint, start, nil)

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.NewUpstreamError(c.name, errors.UpstreamRateLimited, resp.StatusCode, "rate limited", nil)
	case resp.StatusCode >= 500:
		return nil, errors.NewUpstreamError(c.name, errors.UpstreamTransient, resp.StatusCode,
			fmt.Sprintf("server error: %s", http.StatusText(resp.StatusCode)), nil)
	default:
		return nil, errors.NewUpstreamError(c.name, errors.UpstreamPermanent, resp.StatusCode,
			fmt.Sprintf("unexpected status: %s", http.StatusText(resp.StatusCode)), nil)
	}
}

func (c *CoinGeckoClient) logCall(endpoint string, start time.Time, err error) {
	event := c.log.Debug().
		Str("endpoint", endpoint).
		Dur("duration", time.Since(start))
	if err != nil {
		event.Err(err).Msg("Upstream call failed")
	} else {
		event.Msg("Upstream call completed")
	}
}
