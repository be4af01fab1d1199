// Package pricing predicts per-tag market prices and derives the order price
// a node should bid, composing a live prediction with its task's coefficient
// and hard price cap.
package pricing

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"fleetmanager/internal/core"
)

// Oracle caches the marketplace's price predictions per tag. Reads and
// writes are safe for concurrent use from every node goroutine and the
// supervisor's periodic refresh job.
type Oracle struct {
	client core.IMarketplaceClient
	logger core.ILogger

	mu    sync.RWMutex
	cache map[string]decimal.Decimal
}

// NewOracle creates an Oracle backed by the given marketplace client.
func NewOracle(client core.IMarketplaceClient, logger core.ILogger) *Oracle {
	return &Oracle{
		client: client,
		logger: logger.WithField("component", "pricing"),
		cache:  make(map[string]decimal.Decimal),
	}
}

// Predict asks the marketplace predictor for the going rate of a resource
// bundle and, on success, stores it under tag. The cache is published as a
// whole new map so readers never observe a partial update.
func (o *Oracle) Predict(ctx context.Context, tag string, bundle core.ResourceBundle) (decimal.Decimal, bool) {
	usd, ok := o.client.PredictPrice(ctx, bundle.Normalized())
	if !ok {
		o.logger.Warn("price prediction failed", "tag", tag)
		return decimal.Zero, false
	}

	o.mu.Lock()
	next := make(map[string]decimal.Decimal, len(o.cache)+1)
	for k, v := range o.cache {
		next[k] = v
	}
	next[tag] = usd
	o.cache = next
	o.mu.Unlock()

	o.logger.Debug("price prediction updated", "tag", tag, "usd_per_hour", usd.StringFixed(4))
	return usd, true
}

// PriceForTag returns the last cached prediction for tag, if any.
func (o *Oracle) PriceForTag(tag string) (decimal.Decimal, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.cache[tag]
	return v, ok
}

// OrderPrice derives the price a node should bid at: the cap alone if there
// is no cached prediction, otherwise the prediction adjusted by the task's
// coefficient, never exceeding the cap.
func OrderPrice(cfg core.TaskConfig, cached decimal.Decimal, hasCached bool) decimal.Decimal {
	if !hasCached {
		return cfg.MaxPriceUSDPerHour
	}
	coefficient := decimal.NewFromInt(int64(cfg.PriceCoefficientPercent)).Div(decimal.NewFromInt(100))
	adjusted := cached.Mul(decimal.NewFromInt(1).Add(coefficient))
	if adjusted.LessThan(cfg.MaxPriceUSDPerHour) {
		return adjusted
	}
	return cfg.MaxPriceUSDPerHour
}
