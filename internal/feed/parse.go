package feed

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// parsePrice parses a ticker price, keeping it decimal so the exchange's
// exact string survives into the cache.
func parsePrice(s string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(s)
	if err != nil || !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("feed: bad price %q", s)
	}
	return p, nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
