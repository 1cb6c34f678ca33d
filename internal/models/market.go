package models

import "time"

// PriceData is the normalized market-data record every upstream provider
// response is reduced to before caching.
type PriceData struct {
	Symbol    string
	Price     float64
	Volume24h float64
	MarketCap float64
	FetchedAt time.Time
}
