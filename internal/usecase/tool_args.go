package usecase

import (
	"bytes"
	"fmt"
	"log"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"investly/internal/domain"
	"investly/internal/service"
)

// Tool names
const (
	ToolGetBalance        = "getBalance"
	ToolPlaceOrder        = "place_order"
	ToolCancelOrder       = "cancel_order"
	ToolFetchTradeHistory = "fetch_trade_history"
	ToolGetProfitLoss     = "get_profit_loss"
	ToolGetTopMovers      = "get_top_movers"
	ToolCreateWidget      = "create_widget"
	ToolInvestmentAdvice  = "general_investment_advice"
)

// ToolNames is the closed set of tools, in declaration order
var ToolNames = []string{
	ToolGetBalance,
	ToolPlaceOrder,
	ToolCancelOrder,
	ToolFetchTradeHistory,
	ToolGetProfitLoss,
	ToolGetTopMovers,
	ToolCreateWidget,
	ToolInvestmentAdvice,
}

// Argument defaults
const (
	DefaultLimit      = 5
	DefaultCurrency   = service.CurrencyUSDT
	DefaultWidgetType = domain.WidgetPortfolio
	DefaultTimeframe  = "24h"
)

// Enum tables shared by argument decoding and the tool schema
var (
	SideEnum       = []string{string(domain.SideBuy), string(domain.SideSell)}
	CurrencyEnum   = []string{service.CurrencyUSDT, service.CurrencyEUR}
	TimeframeEnum  = []string{"1h", "24h", "7d"}
	WidgetTypeEnum = func() []string {
		out := make([]string, 0, len(domain.WidgetTypes))
		for _, t := range domain.WidgetTypes {
			out = append(out, string(t))
		}
		return out
	}()
)

// ToolArgs is the decoded, defaulted argument set of one tool call.
// Exactly one concrete type exists per tool name.
type ToolArgs interface {
	Tool() string
}

// GetBalanceArgs takes no arguments
type GetBalanceArgs struct{}

// PlaceOrderArgs spends Amount of Currency on a market order for Symbol
type PlaceOrderArgs struct {
	Symbol   string
	Side     domain.Side
	Amount   decimal.Decimal
	Currency string
}

// CancelOrderArgs identifies an open order
type CancelOrderArgs struct {
	OrderID int64
	Symbol  string
}

// TradeHistoryArgs selects recent fills
type TradeHistoryArgs struct {
	Symbol string // empty means every held asset
	Limit  int
}

// ProfitLossArgs names the asset to evaluate
type ProfitLossArgs struct {
	Symbol string
}

// TopMoversArgs ranks allow-listed assets over Timeframe
type TopMoversArgs struct {
	Timeframe string
	Limit     int
}

// WidgetArgs carries a typed widget request; unset fields are filled by the gateway
type WidgetArgs struct {
	Request domain.WidgetRequest
}

// AdviceArgs holds the user question forwarded to the advisor
type AdviceArgs struct {
	Prompt string
}

func (GetBalanceArgs) Tool() string   { return ToolGetBalance }
func (PlaceOrderArgs) Tool() string   { return ToolPlaceOrder }
func (CancelOrderArgs) Tool() string  { return ToolCancelOrder }
func (TradeHistoryArgs) Tool() string { return ToolFetchTradeHistory }
func (ProfitLossArgs) Tool() string   { return ToolGetProfitLoss }
func (TopMoversArgs) Tool() string    { return ToolGetTopMovers }
func (WidgetArgs) Tool() string       { return ToolCreateWidget }
func (AdviceArgs) Tool() string       { return ToolInvestmentAdvice }

// argBag is the raw JSON object of a tool call
type argBag struct {
	tool   string
	fields map[string]json.RawMessage
}

func invalid(tool, format string, a ...any) error {
	return &domain.Error{Kind: domain.KindInvalidArgument, Tool: tool, Message: fmt.Sprintf(format, a...)}
}

func (b argBag) raw(key string) (json.RawMessage, bool) {
	v, ok := b.fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func (b argBag) str(key string) (string, bool, error) {
	v, ok := b.raw(key)
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		// numbers are accepted where a string is expected
		text := string(bytes.TrimSpace(v))
		if _, perr := strconv.ParseFloat(text, 64); perr != nil {
			return "", false, invalid(b.tool, "%s must be a string", key)
		}
		s = text
	}
	s = strings.TrimSpace(s)
	return s, s != "", nil
}

func (b argBag) requiredStr(key string) (string, error) {
	s, ok, err := b.str(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", invalid(b.tool, "%s is required", key)
	}
	return s, nil
}

func (b argBag) integer(key string) (int64, bool, error) {
	v, ok := b.raw(key)
	if !ok {
		return 0, false, nil
	}
	text := strings.Trim(string(bytes.TrimSpace(v)), `"`)
	if text == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(text, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, false, invalid(b.tool, "%s must be an integer", key)
		}
		n = int64(f)
	}
	return n, true, nil
}

func (b argBag) number(key string) (decimal.Decimal, bool, error) {
	v, ok := b.raw(key)
	if !ok {
		return decimal.Zero, false, nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(bytes.TrimSpace(v)); err != nil {
		return decimal.Zero, false, invalid(b.tool, "%s must be a number", key)
	}
	return d, true, nil
}

func (b argBag) boolean(key string) (*bool, error) {
	v, ok := b.raw(key)
	if !ok {
		return nil, nil
	}
	text := strings.ToLower(strings.Trim(string(bytes.TrimSpace(v)), `"`))
	value, err := strconv.ParseBool(text)
	if err != nil {
		return nil, invalid(b.tool, "%s must be a boolean", key)
	}
	return &value, nil
}

// stringList accepts an array of strings or a single string
func (b argBag) stringList(key string) ([]string, error) {
	v, ok := b.raw(key)
	if !ok {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(v, &single); err != nil {
		return nil, invalid(b.tool, "%s must be an array of strings", key)
	}
	if strings.TrimSpace(single) == "" {
		return nil, nil
	}
	return []string{single}, nil
}

func (b argBag) optionalStr(key string) (*string, error) {
	s, ok, err := b.str(key)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func inEnum(value string, enum []string) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
	}
	return false
}

// DecodeToolArgs decodes and defaults the JSON arguments of a tool call
func DecodeToolArgs(name, arguments string) (ToolArgs, error) {
	if !inEnum(name, ToolNames) {
		return nil, &domain.Error{Kind: domain.KindUnknownTool, Tool: name, Message: fmt.Sprintf("unknown function %q", name)}
	}

	bag := argBag{tool: name, fields: map[string]json.RawMessage{}}
	if trimmed := strings.TrimSpace(arguments); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &bag.fields); err != nil {
			return nil, invalid(name, "arguments must be a JSON object: %v", err)
		}
	}

	switch name {
	case ToolGetBalance:
		return GetBalanceArgs{}, nil

	case ToolPlaceOrder:
		return decodePlaceOrder(bag)

	case ToolCancelOrder:
		id, ok, err := bag.integer("orderId")
		if err != nil {
			return nil, err
		}
		if !ok || id <= 0 {
			return nil, invalid(name, "orderId is required and must be positive")
		}
		symbol, err := bag.requiredStr("symbol")
		if err != nil {
			return nil, err
		}
		return CancelOrderArgs{OrderID: id, Symbol: symbol}, nil

	case ToolFetchTradeHistory:
		symbol, _, err := bag.str("symbol")
		if err != nil {
			return nil, err
		}
		limit, err := decodeLimit(bag)
		if err != nil {
			return nil, err
		}
		return TradeHistoryArgs{Symbol: symbol, Limit: limit}, nil

	case ToolGetProfitLoss:
		symbol, err := bag.requiredStr("symbol")
		if err != nil {
			return nil, err
		}
		return ProfitLossArgs{Symbol: symbol}, nil

	case ToolGetTopMovers:
		timeframe, ok, err := bag.str("timeframe")
		if err != nil {
			return nil, err
		}
		timeframe = strings.ToLower(timeframe)
		if !ok || !inEnum(timeframe, TimeframeEnum) {
			if ok {
				log.Printf("[WARN] %s: unsupported timeframe %q, using %s", name, timeframe, DefaultTimeframe)
			}
			timeframe = DefaultTimeframe
		}
		limit, err := decodeLimit(bag)
		if err != nil {
			return nil, err
		}
		return TopMoversArgs{Timeframe: timeframe, Limit: limit}, nil

	case ToolCreateWidget:
		return decodeWidget(bag)

	case ToolInvestmentAdvice:
		prompt, err := bag.requiredStr("textPrompt")
		if err != nil {
			return nil, err
		}
		return AdviceArgs{Prompt: prompt}, nil
	}

	return nil, &domain.Error{Kind: domain.KindUnknownTool, Tool: name, Message: fmt.Sprintf("no decoder for function %q", name)}
}

func decodeLimit(bag argBag) (int, error) {
	limit, ok, err := bag.integer("limit")
	if err != nil {
		return 0, err
	}
	if !ok || limit <= 0 {
		return DefaultLimit, nil
	}
	return int(limit), nil
}

func decodePlaceOrder(bag argBag) (ToolArgs, error) {
	symbol, err := bag.requiredStr("symbol")
	if err != nil {
		return nil, err
	}

	sideRaw, err := bag.requiredStr("side")
	if err != nil {
		return nil, err
	}
	side, ok := domain.ParseSide(sideRaw)
	if !ok {
		return nil, invalid(bag.tool, "side must be one of %v, got %q", SideEnum, sideRaw)
	}

	amount, ok, err := bag.number("amount")
	if err != nil {
		return nil, err
	}
	if !ok || !amount.IsPositive() {
		return nil, invalid(bag.tool, "amount is required and must be positive")
	}

	currency, ok, err := bag.str("currency")
	if err != nil {
		return nil, err
	}
	currency = strings.ToUpper(currency)
	if !ok {
		currency = DefaultCurrency
	} else if !inEnum(currency, CurrencyEnum) {
		return nil, invalid(bag.tool, "currency must be one of %v, got %q", CurrencyEnum, currency)
	}

	return PlaceOrderArgs{Symbol: symbol, Side: side, Amount: amount, Currency: currency}, nil
}

func decodeWidget(bag argBag) (ToolArgs, error) {
	typeRaw, ok, err := bag.str("type")
	if err != nil {
		return nil, err
	}
	widgetType, known := domain.ParseWidgetType(strings.ToUpper(typeRaw))
	if !known {
		if ok {
			log.Printf("[WARN] %s: unsupported widget type %q, using %s", bag.tool, typeRaw, DefaultWidgetType)
		}
		widgetType = DefaultWidgetType
	}

	req := domain.WidgetRequest{Type: widgetType}
	if widgetType != domain.WidgetPortfolio {
		if req.Assets, err = bag.stringList("assets"); err != nil {
			return nil, err
		}
	}
	if req.Timeframe, err = bag.optionalStr("timeframe"); err != nil {
		return nil, err
	}
	if req.StartDate, err = bag.optionalStr("startDate"); err != nil {
		return nil, err
	}
	if req.EndDate, err = bag.optionalStr("endDate"); err != nil {
		return nil, err
	}
	if req.IsBuy, err = bag.boolean("isBuy"); err != nil {
		return nil, err
	}
	return WidgetArgs{Request: req}, nil
}
