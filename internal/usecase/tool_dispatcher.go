package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	json "github.com/goccy/go-json"

	"investly/internal/domain"
)

// MetricsRecorder receives tool and run outcomes
type MetricsRecorder interface {
	ToolCall(tool, result string)
	RunFinished(outcome string, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ToolCall(string, string)           {}
func (noopMetrics) RunFinished(string, time.Duration) {}

// ToolDispatcher maps tool calls onto the exchange gateway and the advisor
type ToolDispatcher struct {
	gateway domain.ExchangeGateway
	advisor domain.Advisor
	metrics MetricsRecorder
	tools   []domain.ToolDefinition
}

var _ domain.ToolDispatcher = (*ToolDispatcher)(nil)

// NewToolDispatcher creates a new ToolDispatcher. advisor and metrics may be nil.
func NewToolDispatcher(gateway domain.ExchangeGateway, advisor domain.Advisor, metrics MetricsRecorder) *ToolDispatcher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &ToolDispatcher{
		gateway: gateway,
		advisor: advisor,
		metrics: metrics,
		tools:   ToolDefinitions(),
	}
}

// Tools returns the schema of every tool Dispatch accepts
func (d *ToolDispatcher) Tools() []domain.ToolDefinition {
	return d.tools
}

// Dispatch runs one tool call and returns its JSON output. Failures are
// rendered as {"error": ..., "kind": ...} payloads, never returned.
func (d *ToolDispatcher) Dispatch(ctx context.Context, name, arguments string) string {
	start := time.Now()

	args, err := DecodeToolArgs(name, arguments)
	if err == nil {
		var result any
		result, err = d.execute(ctx, args)
		if err == nil {
			var data []byte
			if data, err = json.Marshal(result); err == nil {
				d.metrics.ToolCall(name, "ok")
				log.Printf("[TOOL] %s ok (%s)", name, time.Since(start).Round(time.Millisecond))
				return string(data)
			}
		}
	}

	if domain.KindOf(err) == "" {
		err = &domain.Error{Kind: domain.KindToolExecutionFailure, Tool: name, Message: name + " failed", Err: err}
	}
	d.metrics.ToolCall(name, string(domain.KindOf(err)))
	log.Printf("[TOOL] %s failed (%s): %v", name, time.Since(start).Round(time.Millisecond), err)
	return domain.ErrorPayload(err)
}

type tradeHistoryResult struct {
	Symbol string         `json:"symbol,omitempty"`
	Trades []domain.Trade `json:"trades"`
}

type topMoversResult struct {
	Timeframe string         `json:"timeframe"`
	Movers    []domain.Mover `json:"movers"`
}

type adviceResult struct {
	Advice string `json:"advice"`
}

func (d *ToolDispatcher) execute(ctx context.Context, args ToolArgs) (any, error) {
	switch a := args.(type) {
	case GetBalanceArgs:
		return d.gateway.GetBalance(ctx)

	case PlaceOrderArgs:
		return d.gateway.PlaceOrder(ctx, a.Symbol, a.Side, a.Amount, a.Currency)

	case CancelOrderArgs:
		return d.gateway.CancelOrder(ctx, a.OrderID, a.Symbol)

	case TradeHistoryArgs:
		trades, err := d.gateway.FetchTradeHistory(ctx, a.Symbol, a.Limit)
		if err != nil {
			return nil, err
		}
		return tradeHistoryResult{Symbol: a.Symbol, Trades: trades}, nil

	case ProfitLossArgs:
		return d.gateway.GetProfitLoss(ctx, a.Symbol)

	case TopMoversArgs:
		movers, err := d.gateway.GetTopMovers(ctx, a.Timeframe, a.Limit)
		if err != nil {
			return nil, err
		}
		return topMoversResult{Timeframe: a.Timeframe, Movers: movers}, nil

	case WidgetArgs:
		return d.gateway.CreateWidget(ctx, a.Request)

	case AdviceArgs:
		if d.advisor == nil {
			return nil, domain.NewError(domain.KindConfiguration, "investment advice is not configured", nil)
		}
		advice, err := d.advisor.Advise(ctx, a.Prompt)
		if err != nil {
			return nil, err
		}
		return adviceResult{Advice: advice}, nil
	}

	return nil, &domain.Error{Kind: domain.KindUnknownTool, Tool: args.Tool(), Message: fmt.Sprintf("unsupported arguments %T", args)}
}
