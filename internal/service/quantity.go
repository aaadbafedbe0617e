package service

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// DefaultStepSize is used when exchange metadata carries no usable LOT_SIZE filter
var DefaultStepSize = decimal.RequireFromString("0.01")

// RoundQuantity floors qty to a multiple of step. A non-positive step falls
// back to DefaultStepSize.
func RoundQuantity(qty, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		step = DefaultStepSize
	}
	return qty.Div(step).Floor().Mul(step)
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType string          `json:"filterType"`
			StepSize   decimal.Decimal `json:"stepSize"`
		} `json:"filters"`
	} `json:"symbols"`
}

// StepSizeCache memoizes LOT_SIZE step sizes per trading pair
type StepSizeCache struct {
	client ExchangeClient
	mu     sync.RWMutex
	steps  map[string]decimal.Decimal
}

// NewStepSizeCache creates an empty cache
func NewStepSizeCache(client ExchangeClient) *StepSizeCache {
	return &StepSizeCache{
		client: client,
		steps:  make(map[string]decimal.Decimal),
	}
}

// StepSize returns the pair's step size, fetching exchange metadata on a miss.
// Lookup failures fall back to DefaultStepSize and are not cached.
func (c *StepSizeCache) StepSize(ctx context.Context, pair string) decimal.Decimal {
	c.mu.RLock()
	step, ok := c.steps[pair]
	c.mu.RUnlock()
	if ok {
		return step
	}

	step, err := c.fetch(ctx, pair)
	if err != nil {
		log.Printf("[WARN] Step size lookup failed for %s, using %s: %v", pair, DefaultStepSize, err)
		return DefaultStepSize
	}

	c.mu.Lock()
	c.steps[pair] = step
	c.mu.Unlock()
	return step
}

// Preload caches the step sizes of pairs with one exchangeInfo request and
// returns how many were stored. Pairs the exchange does not list stay uncached.
func (c *StepSizeCache) Preload(ctx context.Context, pairs []string) int {
	if len(pairs) == 0 {
		return 0
	}

	steps, err := c.load(ctx, pairs)
	if err != nil {
		log.Printf("[WARN] Step size preload failed for %d pairs: %v", len(pairs), err)
		return 0
	}

	c.mu.Lock()
	for pair, step := range steps {
		c.steps[pair] = step
	}
	c.mu.Unlock()
	return len(steps)
}

// Refresh re-fetches every cached pair. Pairs that fail keep their previous value.
func (c *StepSizeCache) Refresh(ctx context.Context) int {
	c.mu.RLock()
	pairs := make([]string, 0, len(c.steps))
	for pair := range c.steps {
		pairs = append(pairs, pair)
	}
	c.mu.RUnlock()

	return c.Preload(ctx, pairs)
}

// Len returns the number of cached pairs
func (c *StepSizeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.steps)
}

func (c *StepSizeCache) fetch(ctx context.Context, pair string) (decimal.Decimal, error) {
	steps, err := c.load(ctx, []string{pair})
	if err != nil {
		return decimal.Zero, err
	}
	step, ok := steps[pair]
	if !ok {
		log.Printf("[WARN] No LOT_SIZE filter for %s, using %s", pair, DefaultStepSize)
		return DefaultStepSize, nil
	}
	return step, nil
}

// load reads LOT_SIZE filters for pairs. A single pair goes out as symbol=,
// several as a symbols=[...] JSON array.
func (c *StepSizeCache) load(ctx context.Context, pairs []string) (map[string]decimal.Decimal, error) {
	params := url.Values{}
	if len(pairs) == 1 {
		params.Set("symbol", pairs[0])
	} else {
		list, err := json.Marshal(pairs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode symbols: %w", err)
		}
		params.Set("symbols", string(list))
	}

	var info exchangeInfo
	if err := c.client.Public(ctx, "/api/v3/exchangeInfo", params, &info); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(pairs))
	for _, pair := range pairs {
		wanted[pair] = true
	}

	steps := make(map[string]decimal.Decimal, len(pairs))
	for _, s := range info.Symbols {
		if !wanted[s.Symbol] {
			continue
		}
		step := DefaultStepSize
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" && f.StepSize.IsPositive() {
				step = f.StepSize
				break
			}
		}
		steps[s.Symbol] = step
	}
	return steps, nil
}
