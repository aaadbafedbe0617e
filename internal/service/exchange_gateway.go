package service

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"investly/internal/domain"
	"investly/internal/utils"
)

const (
	// ProfitLossWindow is the number of most recent fills sampled for P&L
	ProfitLossWindow = 10

	defaultTradeLimit = 5
	maxTradeLimit     = 1000
	maxFanOut         = 4
)

// Currencies accepted for order notionals
const (
	CurrencyUSDT = "USDT"
	CurrencyEUR  = "EUR"
)

// TopAsset is an allow-listed asset and its display name
type TopAsset struct {
	Symbol string
	Name   string
}

// TopAssets is the allow-list of assets reported in balances and movers
var TopAssets = []TopAsset{
	{"BTC", "Bitcoin"},
	{"ETH", "Ethereum"},
	{"XRP", "Ripple"},
	{"DOGE", "Dogecoin"},
	{"ADA", "Cardano"},
	{"BNB", "Binance Coin"},
	{"SOL", "Solana"},
	{"MATIC", "Polygon"},
	{"DOT", "Polkadot"},
	{"LTC", "Litecoin"},
}

// AssetName returns the display name of an allow-listed asset, or the symbol itself
func AssetName(symbol string) string {
	for _, a := range TopAssets {
		if a.Symbol == symbol {
			return a.Name
		}
	}
	return symbol
}

func topAssetIndex(symbol string) int {
	for i, a := range TopAssets {
		if a.Symbol == symbol {
			return i
		}
	}
	return -1
}

// MoverWindows maps accepted mover timeframes to exchange rolling window sizes
var MoverWindows = map[string]string{
	"1h":  "1h",
	"24h": "1d",
	"7d":  "7d",
}

// ExchangeClient is the request surface of the signed exchange client
type ExchangeClient interface {
	Public(ctx context.Context, path string, params url.Values, out any) error
	Signed(ctx context.Context, method, path string, params url.Values, out any) error
}

var _ domain.ExchangeGateway = (*ExchangeGateway)(nil)

// ExchangeGateway implements domain.ExchangeGateway on the Binance spot API
type ExchangeGateway struct {
	client ExchangeClient
	steps  *StepSizeCache
	quote  string
	now    utils.Clock
}

// NewExchangeGateway creates a new ExchangeGateway quoting pairs in quoteAsset
func NewExchangeGateway(client ExchangeClient, steps *StepSizeCache, quoteAsset string) *ExchangeGateway {
	quoteAsset = strings.ToUpper(strings.TrimSpace(quoteAsset))
	if quoteAsset == "" {
		quoteAsset = CurrencyUSDT
	}
	if steps == nil {
		steps = NewStepSizeCache(client)
	}
	return &ExchangeGateway{
		client: client,
		steps:  steps,
		quote:  quoteAsset,
		now:    utils.UTCNow,
	}
}

// SetClock overrides the clock used for widget date defaults
func (g *ExchangeGateway) SetClock(now utils.Clock) {
	g.now = now
}

// TopPairs returns the allow-listed assets paired with the quote asset
func (g *ExchangeGateway) TopPairs() []string {
	pairs := make([]string, 0, len(TopAssets))
	for _, a := range TopAssets {
		pairs = append(pairs, a.Symbol+g.quote)
	}
	return pairs
}

// WarmStepSizes preloads the LOT_SIZE filters of every allow-listed pair
func (g *ExchangeGateway) WarmStepSizes(ctx context.Context) int {
	return g.steps.Preload(ctx, g.TopPairs())
}

// NormalizePair maps a base asset ("btc") or full pair ("BTCUSDT") to the
// upper-case <BASE><QUOTE> pair
func (g *ExchangeGateway) NormalizePair(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", domain.NewError(domain.KindInvalidArgument, "symbol is required", nil)
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", domain.NewError(domain.KindInvalidArgument, fmt.Sprintf("invalid symbol %q", symbol), nil)
		}
	}
	if s == g.quote {
		return "", domain.NewError(domain.KindInvalidArgument, fmt.Sprintf("symbol %q is the quote asset", symbol), nil)
	}
	if strings.HasSuffix(s, g.quote) {
		return s, nil
	}
	return s + g.quote, nil
}

// Price returns the last price of a pair. Failed lookups and non-positive
// prices are PriceUnavailable.
func (g *ExchangeGateway) Price(ctx context.Context, pair string) (decimal.Decimal, error) {
	var ticker struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := g.client.Public(ctx, "/api/v3/ticker/price", url.Values{"symbol": {pair}}, &ticker); err != nil {
		return decimal.Zero, domain.NewError(domain.KindPriceUnavailable, "failed to fetch price for "+pair, err)
	}
	if !ticker.Price.IsPositive() {
		return decimal.Zero, domain.NewError(domain.KindPriceUnavailable, fmt.Sprintf("non-positive price %s for %s", ticker.Price, pair), nil)
	}
	return ticker.Price, nil
}

type accountBalance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// heldAssets returns allow-listed balances with a positive free amount, in allow-list order
func (g *ExchangeGateway) heldAssets(ctx context.Context) ([]accountBalance, error) {
	var account struct {
		Balances []accountBalance `json:"balances"`
	}
	if err := g.client.Signed(ctx, http.MethodGet, "/api/v3/account", nil, &account); err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}

	held := make([]accountBalance, 0, len(TopAssets))
	for _, b := range account.Balances {
		if topAssetIndex(b.Asset) < 0 || !b.Free.IsPositive() {
			continue
		}
		held = append(held, b)
	}
	sort.SliceStable(held, func(i, j int) bool {
		return topAssetIndex(held[i].Asset) < topAssetIndex(held[j].Asset)
	})
	return held, nil
}

// GetBalance returns the allow-listed holdings valued in USD
func (g *ExchangeGateway) GetBalance(ctx context.Context) (domain.BalanceSnapshot, error) {
	held, err := g.heldAssets(ctx)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}

	p := pool.NewWithResults[domain.Balance]().WithMaxGoroutines(maxFanOut)
	for _, b := range held {
		p.Go(func() domain.Balance {
			balance := domain.Balance{
				Symbol: b.Asset,
				Asset:  AssetName(b.Asset),
				Amount: b.Free,
				Locked: b.Locked,
			}
			price, err := g.Price(ctx, b.Asset+g.quote)
			if err != nil {
				log.Printf("[WARN] No USD value for %s: %v", b.Asset, err)
				return balance
			}
			balance.USDValue = b.Free.Mul(price)
			return balance
		})
	}
	balances := p.Wait()

	sort.SliceStable(balances, func(i, j int) bool {
		return topAssetIndex(balances[i].Symbol) < topAssetIndex(balances[j].Symbol)
	})

	snapshot := domain.BalanceSnapshot{Balances: balances, TotalValueUSD: decimal.Zero}
	for _, b := range balances {
		snapshot.TotalValueUSD = snapshot.TotalValueUSD.Add(b.USDValue)
	}
	return snapshot, nil
}

// PlaceOrder submits a market order for an amount expressed in currency (USDT or EUR).
// No order is sent unless every price lookup succeeds.
func (g *ExchangeGateway) PlaceOrder(ctx context.Context, symbol string, side domain.Side, amount decimal.Decimal, currency string) (domain.OrderResult, error) {
	side, ok := domain.ParseSide(string(side))
	if !ok {
		return domain.OrderResult{}, domain.NewError(domain.KindInvalidArgument, "side must be BUY or SELL", nil)
	}
	if !amount.IsPositive() {
		return domain.OrderResult{}, domain.NewError(domain.KindInvalidArgument, "amount must be positive", nil)
	}
	pair, err := g.NormalizePair(symbol)
	if err != nil {
		return domain.OrderResult{}, err
	}

	notional := amount
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "", CurrencyUSDT:
	case CurrencyEUR:
		rate, err := g.Price(ctx, CurrencyEUR+g.quote)
		if err != nil {
			return domain.OrderResult{}, err
		}
		notional = amount.Mul(rate)
	default:
		return domain.OrderResult{}, domain.NewError(domain.KindInvalidArgument, fmt.Sprintf("unsupported currency %q", currency), nil)
	}

	price, err := g.Price(ctx, pair)
	if err != nil {
		return domain.OrderResult{}, err
	}

	step := g.steps.StepSize(ctx, pair)
	qty := RoundQuantity(notional.Div(price), step)
	if !qty.IsPositive() {
		return domain.OrderResult{}, domain.NewError(domain.KindInvalidArgument,
			fmt.Sprintf("amount %s %s is below the minimum lot of %s %s", amount, currency, step, pair), nil)
	}

	order := domain.Order{Symbol: pair, Side: side, Quantity: qty}
	var result domain.OrderResult
	if err := g.client.Signed(ctx, http.MethodPost, "/api/v3/order", order.Params(), &result); err != nil {
		return domain.OrderResult{}, fmt.Errorf("failed to place order: %w", err)
	}

	log.Printf("[OK] Order placed: %s %s qty=%s orderId=%d", side, pair, qty, result.OrderID)
	return result, nil
}

// CancelOrder cancels an open order
func (g *ExchangeGateway) CancelOrder(ctx context.Context, orderID int64, symbol string) (domain.CancelResult, error) {
	if orderID <= 0 {
		return domain.CancelResult{}, domain.NewError(domain.KindInvalidArgument, "orderId must be positive", nil)
	}
	pair, err := g.NormalizePair(symbol)
	if err != nil {
		return domain.CancelResult{}, err
	}

	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	var result domain.CancelResult
	if err := g.client.Signed(ctx, http.MethodDelete, "/api/v3/order", params, &result); err != nil {
		return domain.CancelResult{}, fmt.Errorf("failed to cancel order: %w", err)
	}

	log.Printf("[OK] Order cancelled: %s orderId=%d", pair, orderID)
	return result, nil
}

func (g *ExchangeGateway) trades(ctx context.Context, pair string, limit int) ([]domain.Trade, error) {
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("limit", strconv.Itoa(limit))

	var trades []domain.Trade
	if err := g.client.Signed(ctx, http.MethodGet, "/api/v3/myTrades", params, &trades); err != nil {
		return nil, fmt.Errorf("failed to fetch trades for %s: %w", pair, err)
	}
	return trades, nil
}

// FetchTradeHistory returns recent fills, newest first. An empty symbol
// merges the history of every held asset; per-asset failures are skipped.
func (g *ExchangeGateway) FetchTradeHistory(ctx context.Context, symbol string, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = defaultTradeLimit
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}

	if strings.TrimSpace(symbol) != "" {
		pair, err := g.NormalizePair(symbol)
		if err != nil {
			return nil, err
		}
		trades, err := g.trades(ctx, pair, limit)
		if err != nil {
			return nil, err
		}
		sortTradesNewestFirst(trades)
		return trades, nil
	}

	held, err := g.heldAssets(ctx)
	if err != nil {
		return nil, err
	}

	p := pool.NewWithResults[[]domain.Trade]().WithMaxGoroutines(maxFanOut)
	for _, b := range held {
		pair := b.Asset + g.quote
		p.Go(func() []domain.Trade {
			trades, err := g.trades(ctx, pair, limit)
			if err != nil {
				log.Printf("[WARN] Skipping trade history for %s: %v", pair, err)
				return nil
			}
			return trades
		})
	}

	merged := make([]domain.Trade, 0)
	for _, trades := range p.Wait() {
		merged = append(merged, trades...)
	}
	sortTradesNewestFirst(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func sortTradesNewestFirst(trades []domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Time != trades[j].Time {
			return trades[i].Time > trades[j].Time
		}
		return trades[i].ID > trades[j].ID
	})
}

// GetProfitLoss returns realized P&L over the last ProfitLossWindow fills only.
// This is a bounded-window figure, not a cost-basis position calculation.
func (g *ExchangeGateway) GetProfitLoss(ctx context.Context, symbol string) (domain.ProfitLoss, error) {
	pair, err := g.NormalizePair(symbol)
	if err != nil {
		return domain.ProfitLoss{}, err
	}
	trades, err := g.trades(ctx, pair, ProfitLossWindow)
	if err != nil {
		return domain.ProfitLoss{}, err
	}

	pl := domain.ProfitLoss{Symbol: pair, TotalBuy: decimal.Zero, TotalSell: decimal.Zero, Window: ProfitLossWindow}
	for _, t := range trades {
		value := t.Price.Mul(t.Qty)
		if t.IsBuyer {
			pl.TotalBuy = pl.TotalBuy.Add(value)
		} else {
			pl.TotalSell = pl.TotalSell.Add(value)
		}
	}
	pl.ProfitLoss = pl.TotalSell.Sub(pl.TotalBuy)
	return pl, nil
}

// GetTopMovers ranks the allow-listed pairs by absolute price change over timeframe
func (g *ExchangeGateway) GetTopMovers(ctx context.Context, timeframe string, limit int) ([]domain.Mover, error) {
	window, ok := MoverWindows[timeframe]
	if !ok {
		return nil, domain.NewError(domain.KindInvalidArgument, fmt.Sprintf("unsupported timeframe %q", timeframe), nil)
	}
	if limit <= 0 {
		limit = defaultTradeLimit
	}

	p := pool.NewWithResults[*domain.Mover]().WithMaxGoroutines(maxFanOut)
	for _, a := range TopAssets {
		pair := a.Symbol + g.quote
		p.Go(func() *domain.Mover {
			var ticker struct {
				Symbol             string          `json:"symbol"`
				PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
				LastPrice          decimal.Decimal `json:"lastPrice"`
			}
			params := url.Values{"symbol": {pair}, "windowSize": {window}}
			if err := g.client.Public(ctx, "/api/v3/ticker", params, &ticker); err != nil {
				log.Printf("[WARN] Skipping mover %s: %v", pair, err)
				return nil
			}
			return &domain.Mover{Symbol: pair, PriceChangePercent: ticker.PriceChangePercent, LastPrice: ticker.LastPrice}
		})
	}

	movers := make([]domain.Mover, 0, len(TopAssets))
	for _, m := range p.Wait() {
		if m != nil {
			movers = append(movers, *m)
		}
	}
	if len(movers) == 0 {
		return nil, domain.NewError(domain.KindPriceUnavailable, "no ticker data for any tracked asset", nil)
	}

	sort.SliceStable(movers, func(i, j int) bool {
		ai, aj := movers[i].PriceChangePercent.Abs(), movers[j].PriceChangePercent.Abs()
		if !ai.Equal(aj) {
			return ai.GreaterThan(aj)
		}
		return movers[i].Symbol < movers[j].Symbol
	})
	if len(movers) > limit {
		movers = movers[:limit]
	}
	return movers, nil
}
