package domain

// WidgetType selects the widget layout
type WidgetType string

// WidgetType constants
const (
	WidgetQuickTrade     WidgetType = "QUICK_TRADE"
	WidgetProfitLoss     WidgetType = "PROFIT_LOSS"
	WidgetMarketOverview WidgetType = "MARKET_OVERVIEW"
	WidgetPortfolio      WidgetType = "PORTFOLIO"
)

// WidgetTypes lists every recognized widget type
var WidgetTypes = []WidgetType{WidgetProfitLoss, WidgetQuickTrade, WidgetMarketOverview, WidgetPortfolio}

// ParseWidgetType reports whether s names a known widget type
func ParseWidgetType(s string) (WidgetType, bool) {
	for _, t := range WidgetTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// WidgetRequest carries the nullable widget fields as received from a tool call
type WidgetRequest struct {
	Type      WidgetType
	Assets    []string
	Timeframe *string
	StartDate *string
	EndDate   *string
	IsBuy     *bool
}

// Widget is the provider-agnostic visualization payload. Every field
// except the portfolio extras is always populated.
type Widget struct {
	Type      WidgetType `json:"type"`
	Assets    []string   `json:"assets"`
	Timeframe string     `json:"timeframe"`
	StartDate string     `json:"startDate"`
	EndDate   string     `json:"endDate"`
	IsBuy     bool       `json:"isBuy"`

	Response     string        `json:"response,omitempty"`
	Balances     []Balance     `json:"balances,omitempty"`
	WidgetConfig *WidgetConfig `json:"widget_config,omitempty"`

	Status  string `json:"status"`
	Message string `json:"message"`
}

// WidgetConfig echoes the request of a portfolio widget
type WidgetConfig struct {
	Type      WidgetType `json:"type"`
	Assets    []string   `json:"assets"`
	Timeframe string     `json:"timeframe"`
	StartDate string     `json:"startDate"`
	EndDate   string     `json:"endDate"`
	IsBuy     bool       `json:"isBuy"`
}
