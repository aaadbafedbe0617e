package domain

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order
type Side string

// Side constants
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts BUY/SELL in any case
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

// Order is a market order ready to be signed. Timestamp and signature are
// appended by the signed request client at send time.
type Order struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
}

// Params returns the order's query parameters
func (o Order) Params() url.Values {
	v := url.Values{}
	v.Set("symbol", o.Symbol)
	v.Set("side", string(o.Side))
	v.Set("type", "MARKET")
	v.Set("quantity", o.Quantity.String())
	return v
}

// OrderResult is the exchange acknowledgement of a placed order
type OrderResult struct {
	Symbol              string          `json:"symbol"`
	OrderID             int64           `json:"orderId"`
	ClientOrderID       string          `json:"clientOrderId"`
	TransactTime        int64           `json:"transactTime"`
	OrigQty             decimal.Decimal `json:"origQty"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	Status              string          `json:"status"`
	Type                string          `json:"type"`
	Side                string          `json:"side"`
}

// CancelResult is the exchange acknowledgement of a cancellation
type CancelResult struct {
	Symbol            string          `json:"symbol"`
	OrderID           int64           `json:"orderId"`
	OrigClientOrderID string          `json:"origClientOrderId"`
	OrigQty           decimal.Decimal `json:"origQty"`
	ExecutedQty       decimal.Decimal `json:"executedQty"`
	Status            string          `json:"status"`
	Side              string          `json:"side"`
}

// Balance is one held asset joined with its USD valuation
type Balance struct {
	Symbol   string          `json:"symbol"`
	Asset    string          `json:"asset"` // full asset name
	Amount   decimal.Decimal `json:"amount"`
	Locked   decimal.Decimal `json:"locked"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// BalanceSnapshot is the aggregated portfolio
type BalanceSnapshot struct {
	Balances      []Balance       `json:"balances"`
	TotalValueUSD decimal.Decimal `json:"total_value_usd"`
}

// Trade is one fill from the account trade list
type Trade struct {
	ID       int64           `json:"id"`
	OrderID  int64           `json:"orderId"`
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	Qty      decimal.Decimal `json:"qty"`
	QuoteQty decimal.Decimal `json:"quoteQty"`
	Time     int64           `json:"time"`
	IsBuyer  bool            `json:"isBuyer"`
	IsMaker  bool            `json:"isMaker"`
}

// ProfitLoss is realized P&L over the last Window trades only
type ProfitLoss struct {
	Symbol     string          `json:"symbol"`
	ProfitLoss decimal.Decimal `json:"profit_loss"`
	TotalBuy   decimal.Decimal `json:"total_buy"`
	TotalSell  decimal.Decimal `json:"total_sell"`
	Window     int             `json:"window"`
}

// Mover is a ticker ranked by price change
type Mover struct {
	Symbol             string          `json:"symbol"`
	PriceChangePercent decimal.Decimal `json:"price_change_percent"`
	LastPrice          decimal.Decimal `json:"last_price"`
}

// ExchangeGateway is the set of trading operations exposed to tools
type ExchangeGateway interface {
	GetBalance(ctx context.Context) (BalanceSnapshot, error)
	PlaceOrder(ctx context.Context, symbol string, side Side, amount decimal.Decimal, currency string) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID int64, symbol string) (CancelResult, error)
	FetchTradeHistory(ctx context.Context, symbol string, limit int) ([]Trade, error)
	GetProfitLoss(ctx context.Context, symbol string) (ProfitLoss, error)
	GetTopMovers(ctx context.Context, timeframe string, limit int) ([]Mover, error)
	CreateWidget(ctx context.Context, req WidgetRequest) (Widget, error)
}

// Advisor generates free-form investment guidance
type Advisor interface {
	Advise(ctx context.Context, prompt string) (string, error)
}
