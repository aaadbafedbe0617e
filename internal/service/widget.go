package service

import (
	"context"
	"fmt"
	"strings"

	"investly/internal/domain"
	"investly/internal/utils"
)

const (
	defaultWidgetTimeframe = "1d"
	portfolioResponse      = "Portfolio Overview"
	widgetSuccessMessage   = "Widget created successfully"
)

func valueOr(s *string, fallback string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return fallback
	}
	return *s
}

// CreateWidget builds a widget payload with per-type defaults. Only
// PORTFOLIO widgets reach the exchange.
func (g *ExchangeGateway) CreateWidget(ctx context.Context, req domain.WidgetRequest) (domain.Widget, error) {
	assets := make([]string, 0, len(req.Assets))
	for _, a := range req.Assets {
		if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
			assets = append(assets, a)
		}
	}

	widgetType := req.Type
	if widgetType == "" {
		widgetType = domain.WidgetQuickTrade
	}

	w := domain.Widget{
		Type:    widgetType,
		Assets:  assets,
		Status:  "success",
		Message: widgetSuccessMessage,
	}

	switch widgetType {
	case domain.WidgetQuickTrade:
		w.IsBuy = true
		if req.IsBuy != nil {
			w.IsBuy = *req.IsBuy
		}

	case domain.WidgetPortfolio:
		snapshot, err := g.GetBalance(ctx)
		if err != nil {
			return domain.Widget{}, fmt.Errorf("failed to create widget: %w", err)
		}
		w.Response = portfolioResponse
		w.Balances = snapshot.Balances
		w.WidgetConfig = &domain.WidgetConfig{
			Type:      widgetType,
			Assets:    assets,
			Timeframe: valueOr(req.Timeframe, ""),
			StartDate: valueOr(req.StartDate, ""),
			EndDate:   valueOr(req.EndDate, ""),
		}

	default:
		start, end := utils.LastMonthWindow(g.now())
		w.Timeframe = valueOr(req.Timeframe, defaultWidgetTimeframe)
		w.StartDate = valueOr(req.StartDate, start)
		w.EndDate = valueOr(req.EndDate, end)
	}

	return w, nil
}
