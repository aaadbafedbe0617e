package usecase

import (
	json "github.com/goccy/go-json"

	"investly/internal/domain"
)

type toolParam struct {
	name        string
	kind        string // string | integer | number | boolean | array
	description string
	enum        []string
	required    bool
}

type toolSpec struct {
	name        string
	description string
	params      []toolParam
}

var toolSpecs = []toolSpec{
	{
		name:        ToolGetBalance,
		description: "Retrieve the user's Binance account balance for the top traded assets, valued in USD",
	},
	{
		name:        ToolPlaceOrder,
		description: "Execute a market order on Binance for an amount expressed in USDT or EUR",
		params: []toolParam{
			{name: "symbol", kind: "string", description: "Base asset (BTC) or pair (BTCUSDT)", required: true},
			{name: "side", kind: "string", description: "Order side", enum: SideEnum, required: true},
			{name: "amount", kind: "number", description: "Amount to spend or receive, in the given currency", required: true},
			{name: "currency", kind: "string", description: "Currency of amount, defaults to USDT", enum: CurrencyEnum},
		},
	},
	{
		name:        ToolCancelOrder,
		description: "Cancel an open Binance order",
		params: []toolParam{
			{name: "orderId", kind: "integer", description: "Exchange order id", required: true},
			{name: "symbol", kind: "string", description: "Base asset (BTC) or pair (BTCUSDT) of the order", required: true},
		},
	},
	{
		name:        ToolFetchTradeHistory,
		description: "Retrieve past executed trades, newest first. Omit symbol to include every held asset",
		params: []toolParam{
			{name: "symbol", kind: "string", description: "Base asset (BTC) or pair (BTCUSDT)"},
			{name: "limit", kind: "integer", description: "Maximum number of trades, defaults to 5"},
		},
	},
	{
		name:        ToolGetProfitLoss,
		description: "Check realized profit/loss for an asset over its 10 most recent trades",
		params: []toolParam{
			{name: "symbol", kind: "string", description: "Base asset (BTC) or pair (BTCUSDT)", required: true},
		},
	},
	{
		name:        ToolGetTopMovers,
		description: "Retrieve the top moving cryptocurrencies by percentage change",
		params: []toolParam{
			{name: "timeframe", kind: "string", description: "Rolling window, defaults to 24h", enum: TimeframeEnum},
			{name: "limit", kind: "integer", description: "Number of movers, defaults to 5"},
		},
	},
	{
		name:        ToolCreateWidget,
		description: "Generate a widget for the user based on their request",
		params: []toolParam{
			{name: "type", kind: "string", description: "Widget layout, defaults to PORTFOLIO", enum: WidgetTypeEnum, required: true},
			{name: "assets", kind: "array", description: "Assets shown by the widget"},
			{name: "timeframe", kind: "string", description: "Chart granularity such as 1d"},
			{name: "startDate", kind: "string", description: "Start date, YYYY-MM-DD"},
			{name: "endDate", kind: "string", description: "End date, YYYY-MM-DD"},
			{name: "isBuy", kind: "boolean", description: "Trade direction for QUICK_TRADE widgets"},
		},
	},
	{
		name:        ToolInvestmentAdvice,
		description: "Provides general investment advice based on user input",
		params: []toolParam{
			{name: "textPrompt", kind: "string", description: "The user's question", required: true},
		},
	},
}

func (s toolSpec) parameters() json.RawMessage {
	properties := make(map[string]any, len(s.params))
	required := make([]string, 0, len(s.params))

	for _, p := range s.params {
		prop := map[string]any{"type": p.kind}
		if p.description != "" {
			prop["description"] = p.description
		}
		if len(p.enum) > 0 {
			prop["enum"] = p.enum
		}
		if p.kind == "array" {
			prop["items"] = map[string]any{"type": "string"}
		}
		properties[p.name] = prop
		if p.required {
			required = append(required, p.name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
	data, err := json.Marshal(schema)
	if err != nil {
		// static input, cannot fail
		panic(err)
	}
	return data
}

// ToolDefinitions returns the schema of every supported tool
func ToolDefinitions() []domain.ToolDefinition {
	defs := make([]domain.ToolDefinition, 0, len(toolSpecs))
	for _, s := range toolSpecs {
		defs = append(defs, domain.ToolDefinition{
			Name:        s.name,
			Description: s.description,
			Parameters:  s.parameters(),
		})
	}
	return defs
}
