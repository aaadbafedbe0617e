package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"investly/internal/domain"
)

const accountJSON = `{"balances":[
	{"asset":"USDT","free":"250.00","locked":"0"},
	{"asset":"ETH","free":"2.0","locked":"0.1"},
	{"asset":"BTC","free":"0.5","locked":"0"},
	{"asset":"PEPE","free":"1000000","locked":"0"},
	{"asset":"SOL","free":"10","locked":"0"},
	{"asset":"ADA","free":"0.00000000","locked":"5"}
]}`

func newGateway(ex *fakeExchange) *ExchangeGateway {
	return NewExchangeGateway(ex, nil, "USDT")
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNormalizePair(t *testing.T) {
	g := newGateway(newFakeExchange())

	for in, want := range map[string]string{
		"BTC":     "BTCUSDT",
		"btc":     "BTCUSDT",
		" eth ":   "ETHUSDT",
		"BTCUSDT": "BTCUSDT",
		"solusdt": "SOLUSDT",
	} {
		got, err := g.NormalizePair(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "  ", "USDT", "BTC/USDT", "BTC&x=1"} {
		_, err := g.NormalizePair(bad)
		require.True(t, domain.IsKind(err, domain.KindInvalidArgument), bad)
	}
}

func TestGetBalanceFiltersAndValues(t *testing.T) {
	ex := newFakeExchange()
	ex.reply(http.MethodGet, "/api/v3/account", accountJSON)
	ex.on(http.MethodGet, "/api/v3/ticker/price", prices(map[string]string{
		"BTCUSDT": "40000",
		"ETHUSDT": "2500",
		"SOLUSDT": "100",
	}))

	snapshot, err := newGateway(ex).GetBalance(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Balances, 3)
	require.Equal(t, "BTC", snapshot.Balances[0].Symbol)
	require.Equal(t, "Bitcoin", snapshot.Balances[0].Asset)
	require.True(t, snapshot.Balances[0].USDValue.Equal(dec("20000")))
	require.Equal(t, "ETH", snapshot.Balances[1].Symbol)
	require.True(t, snapshot.Balances[1].Locked.Equal(dec("0.1")))
	require.Equal(t, "Solana", snapshot.Balances[2].Asset)
	require.True(t, snapshot.TotalValueUSD.Equal(dec("26000")), snapshot.TotalValueUSD.String())

	call, ok := ex.lastCall(http.MethodGet, "/api/v3/account")
	require.True(t, ok)
	require.True(t, call.signed)
}

func TestGetBalanceKeepsAssetWhenPriceMissing(t *testing.T) {
	ex := newFakeExchange()
	ex.reply(http.MethodGet, "/api/v3/account", `{"balances":[{"asset":"BTC","free":"1","locked":"0"},{"asset":"DOT","free":"3","locked":"0"}]}`)
	ex.on(http.MethodGet, "/api/v3/ticker/price", prices(map[string]string{"BTCUSDT": "30000"}))

	snapshot, err := newGateway(ex).GetBalance(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Balances, 2)
	require.True(t, snapshot.Balances[1].USDValue.IsZero())
	require.True(t, snapshot.TotalValueUSD.Equal(dec("30000")))
}

func TestPlaceOrderConvertsEURAndRoundsToStep(t *testing.T) {
	ex := newFakeExchange()
	ex.on(http.MethodGet, "/api/v3/ticker/price", prices(map[string]string{
		"EURUSDT": "1.1",
		"BTCUSDT": "40000",
	}))
	ex.reply(http.MethodGet, "/api/v3/exchangeInfo", `{"symbols":[{"symbol":"BTCUSDT","filters":[
		{"filterType":"PRICE_FILTER","tickSize":"0.01"},
		{"filterType":"LOT_SIZE","minQty":"0.00001","stepSize":"0.00001000"}
	]}]}`)
	ex.reply(http.MethodPost, "/api/v3/order", `{"symbol":"BTCUSDT","orderId":42,"status":"FILLED","side":"BUY","type":"MARKET","executedQty":"0.00275"}`)

	result, err := newGateway(ex).PlaceOrder(context.Background(), "btc", "buy", dec("100"), "EUR")
	require.NoError(t, err)
	require.EqualValues(t, 42, result.OrderID)

	call, ok := ex.lastCall(http.MethodPost, "/api/v3/order")
	require.True(t, ok)
	require.True(t, call.signed)
	require.Equal(t, "BTCUSDT", call.params.Get("symbol"))
	require.Equal(t, "BUY", call.params.Get("side"))
	require.Equal(t, "MARKET", call.params.Get("type"))
	// 100 EUR * 1.1 = 110 USDT / 40000 = 0.00275
	require.Equal(t, "0.00275", call.params.Get("quantity"))
}

func TestPlaceOrderStopsWhenEURRateUnavailable(t *testing.T) {
	for name, rate := range map[string]string{"zero": "0", "negative": "-1.2"} {
		t.Run(name, func(t *testing.T) {
			ex := newFakeExchange()
			ex.on(http.MethodGet, "/api/v3/ticker/price", prices(map[string]string{
				"EURUSDT": rate,
				"BTCUSDT": "40000",
			}))
			ex.reply(http.MethodPost, "/api/v3/order", `{"orderId":1}`)

			_, err := newGateway(ex).PlaceOrder(context.Background(), "BTC", domain.SideBuy, dec("100"), "EUR")
			require.True(t, domain.IsKind(err, domain.KindPriceUnavailable))
			require.Zero(t, ex.count(http.MethodPost, "/api/v3/order"))
		})
	}
}

func TestPlaceOrderStopsWhenPairPriceFails(t *testing.T) {
	ex := newFakeExchange()
	ex.on(http.MethodGet, "/api/v3/ticker/price", prices(map[string]string{}))

	_, err := newGateway(ex).PlaceOrder(context.Background(), "BTC", domain.SideSell, dec("50"), "USDT")
	require.True(t, domain.IsKind(err, domain.KindPriceUnavailable))
	require.Zero(t, ex.count(http.MethodPost, "/api/v3/order"))
}

func TestPlaceOrderRejectsDustAndBadInput(t *testing.T) {
	ex := newFakeExchange()
	ex.on(http.MethodGet, "/api/v3/ticker/price", prices(map[string]string{"BTCUSDT": "40000"}))
	ex.reply(http.MethodGet, "/api/v3/exchangeInfo", `{"symbols":[]}`)
	g := newGateway(ex)
	ctx := context.Background()

	// 1 USDT buys 0.000025 BTC which floors to 0 at the 0.01 fallback step
	_, err := g.PlaceOrder(ctx, "BTC", domain.SideBuy, dec("1"), "USDT")
	require.True(t, domain.IsKind(err, domain.KindInvalidArgument))

	_, err = g.PlaceOrder(ctx, "BTC", "HOLD", dec("1"), "USDT")
	require.True(t, domain.IsKind(err, domain.KindInvalidArgument))

	_, err = g.PlaceOrder(ctx, "BTC", domain.SideBuy, dec("-5"), "USDT")
	require.True(t, domain.IsKind(err, domain.KindInvalidArgument))

	_, err = g.PlaceOrder(ctx, "BTC", domain.SideBuy, dec("5"), "GBP")
	require.True(t, domain.IsKind(err, domain.KindInvalidArgument))

	require.Zero(t, ex.count(http.MethodPost, "/api/v3/order"))
}

func TestCancelOrder(t *testing.T) {
	ex := newFakeExchange()
	ex.reply(http.MethodDelete, "/api/v3/order", `{"symbol":"ETHUSDT","orderId":77,"status":"CANCELED"}`)

	result, err := newGateway(ex).CancelOrder(context.Background(), 77, "eth")
	require.NoError(t, err)
	require.Equal(t, "CANCELED", result.Status)

	call, _ := ex.lastCall(http.MethodDelete, "/api/v3/order")
	require.True(t, call.signed)
	require.Equal(t, "77", call.params.Get("orderId"))
	require.Equal(t, "ETHUSDT", call.params.Get("symbol"))
	require.Empty(t, call.params.Get("quantity"))

	_, err = newGateway(ex).CancelOrder(context.Background(), 0, "eth")
	require.True(t, domain.IsKind(err, domain.KindInvalidArgument))
}

func tradesJSON(symbol string, times ...int64) string {
	out := "["
	for i, ts := range times {
		if i > 0 {
			out += ","
		}
		id := strconv.FormatInt(ts, 10)
		out += `{"symbol":"` + symbol + `","id":` + id + `,"orderId":` + id + `,"price":"1","qty":"1","quoteQty":"1","time":` + id + `,"isBuyer":true}`
	}
	return out + "]"
}

func TestFetchTradeHistoryMergesHeldAssets(t *testing.T) {
	ex := newFakeExchange()
	ex.reply(http.MethodGet, "/api/v3/account", `{"balances":[
		{"asset":"BTC","free":"1","locked":"0"},
		{"asset":"ETH","free":"1","locked":"0"},
		{"asset":"SOL","free":"1","locked":"0"},
		{"asset":"XRP","free":"0","locked":"0"}
	]}`)
	ex.on(http.MethodGet, "/api/v3/myTrades", func(params url.Values) (string, error) {
		switch params.Get("symbol") {
		case "BTCUSDT":
			return tradesJSON("BTCUSDT", 100, 900, 500), nil
		case "ETHUSDT":
			return tradesJSON("ETHUSDT", 800, 200), nil
		case "SOLUSDT":
			return tradesJSON("SOLUSDT", 300, 700, 1000), nil
		}
		return "", &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 400}
	})

	trades, err := newGateway(ex).FetchTradeHistory(context.Background(), "", 5)
	require.NoError(t, err)
	require.Len(t, trades, 5)

	var times []int64
	for _, tr := range trades {
		times = append(times, tr.Time)
	}
	require.Equal(t, []int64{1000, 900, 800, 700, 500}, times)
	require.Equal(t, 3, ex.count(http.MethodGet, "/api/v3/myTrades"))
}

func TestFetchTradeHistorySkipsFailingAsset(t *testing.T) {
	ex := newFakeExchange()
	ex.reply(http.MethodGet, "/api/v3/account", `{"balances":[{"asset":"BTC","free":"1","locked":"0"},{"asset":"DOT","free":"2","locked":"0"}]}`)
	ex.on(http.MethodGet, "/api/v3/myTrades", func(params url.Values) (string, error) {
		if params.Get("symbol") == "DOTUSDT" {
			return "", domain.NewError(domain.KindNetworkFailure, "reset", nil)
		}
		return tradesJSON("BTCUSDT", 10, 20), nil
	})

	trades, err := newGateway(ex).FetchTradeHistory(context.Background(), "", 5)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.EqualValues(t, 20, trades[0].Time)
}

func TestFetchTradeHistoryForSymbol(t *testing.T) {
	ex := newFakeExchange()
	ex.reply(http.MethodGet, "/api/v3/myTrades", tradesJSON("BTCUSDT", 1, 3, 2))

	trades, err := newGateway(ex).FetchTradeHistory(context.Background(), "BTC", 0)
	require.NoError(t, err)
	require.EqualValues(t, 3, trades[0].Time)

	call, _ := ex.lastCall(http.MethodGet, "/api/v3/myTrades")
	require.Equal(t, "BTCUSDT", call.params.Get("symbol"))
	require.Equal(t, "5", call.params.Get("limit"))
	require.Zero(t, ex.count(http.MethodGet, "/api/v3/account"))
}

func TestGetProfitLossUsesLastTenTrades(t *testing.T) {
	ex := newFakeExchange()
	ex.reply(http.MethodGet, "/api/v3/myTrades", `[
		{"id":1,"price":"100","qty":"2","time":1,"isBuyer":true},
		{"id":2,"price":"150","qty":"1","time":2,"isBuyer":false},
		{"id":3,"price":"120","qty":"0.5","time":3,"isBuyer":false}
	]`)

	pl, err := newGateway(ex).GetProfitLoss(context.Background(), "ETH")
	require.NoError(t, err)
	require.True(t, pl.TotalBuy.Equal(dec("200")))
	require.True(t, pl.TotalSell.Equal(dec("210")))
	require.True(t, pl.ProfitLoss.Equal(dec("10")))
	require.Equal(t, ProfitLossWindow, pl.Window)

	call, _ := ex.lastCall(http.MethodGet, "/api/v3/myTrades")
	require.Equal(t, "10", call.params.Get("limit"))
}

func TestGetTopMoversOrdersByAbsoluteChange(t *testing.T) {
	ex := newFakeExchange()
	changes := map[string]string{
		"BTCUSDT": "1.5",
		"ETHUSDT": "-7.25",
		"SOLUSDT": "4",
		"DOGEUSDT": "12",
	}
	var mu sync.Mutex
	var windows []string
	ex.on(http.MethodGet, "/api/v3/ticker", func(params url.Values) (string, error) {
		mu.Lock()
		windows = append(windows, params.Get("windowSize"))
		mu.Unlock()
		pct, ok := changes[params.Get("symbol")]
		if !ok {
			return "", &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 400, Message: "Invalid symbol"}
		}
		return `{"symbol":"` + params.Get("symbol") + `","priceChangePercent":"` + pct + `","lastPrice":"1"}`, nil
	})

	movers, err := newGateway(ex).GetTopMovers(context.Background(), "24h", 3)
	require.NoError(t, err)
	require.Len(t, movers, 3)
	require.Equal(t, "DOGEUSDT", movers[0].Symbol)
	require.Equal(t, "ETHUSDT", movers[1].Symbol)
	require.Equal(t, "SOLUSDT", movers[2].Symbol)
	require.Contains(t, windows, "1d")

	_, err = newGateway(ex).GetTopMovers(context.Background(), "5m", 3)
	require.True(t, domain.IsKind(err, domain.KindInvalidArgument))
}

func TestStepSizeCacheFallbackAndRefresh(t *testing.T) {
	ex := newFakeExchange()
	step := "0.001"
	ex.on(http.MethodGet, "/api/v3/exchangeInfo", func(params url.Values) (string, error) {
		return `{"symbols":[{"symbol":"` + params.Get("symbol") + `","filters":[{"filterType":"LOT_SIZE","stepSize":"` + step + `"}]}]}`, nil
	})
	cache := NewStepSizeCache(ex)
	ctx := context.Background()

	require.True(t, cache.StepSize(ctx, "ETHUSDT").Equal(dec("0.001")))
	require.True(t, cache.StepSize(ctx, "ETHUSDT").Equal(dec("0.001")))
	require.Equal(t, 1, ex.count(http.MethodGet, "/api/v3/exchangeInfo"))

	step = "0.0001"
	require.Equal(t, 1, cache.Refresh(ctx))
	require.True(t, cache.StepSize(ctx, "ETHUSDT").Equal(dec("0.0001")))

	failing := NewStepSizeCache(newFakeExchange())
	require.True(t, failing.StepSize(ctx, "ETHUSDT").Equal(DefaultStepSize))
	require.Zero(t, failing.Len())
}

func TestWidgetDefaultsAreTotal(t *testing.T) {
	ex := newFakeExchange()
	ex.reply(http.MethodGet, "/api/v3/account", `{"balances":[{"asset":"BTC","free":"1","locked":"0"}]}`)
	ex.on(http.MethodGet, "/api/v3/ticker/price", prices(map[string]string{"BTCUSDT": "50000"}))
	g := newGateway(ex)
	g.SetClock(func() time.Time { return time.Date(2024, 3, 31, 15, 0, 0, 0, time.UTC) })

	str := func(s string) *string { return &s }
	boolean := func(b bool) *bool { return &b }
	optionalStrings := []*string{nil, str(""), str("4h")}
	optionalBools := []*bool{nil, boolean(true), boolean(false)}

	types := append([]domain.WidgetType{""}, domain.WidgetTypes...)
	for _, wt := range types {
		for _, tf := range optionalStrings {
			for _, isBuy := range optionalBools {
				req := domain.WidgetRequest{Type: wt, Timeframe: tf, StartDate: tf, EndDate: tf, IsBuy: isBuy}
				w, err := g.CreateWidget(context.Background(), req)
				require.NoError(t, err)

				require.NotEmpty(t, w.Type)
				require.NotNil(t, w.Assets)
				require.Equal(t, "success", w.Status)
				require.Equal(t, "Widget created successfully", w.Message)

				switch w.Type {
				case domain.WidgetQuickTrade:
					require.Empty(t, w.Timeframe)
					require.Empty(t, w.StartDate)
					require.Empty(t, w.EndDate)
					require.Equal(t, isBuy == nil || *isBuy, w.IsBuy)
				case domain.WidgetPortfolio:
					require.Empty(t, w.Timeframe)
					require.False(t, w.IsBuy)
					require.Equal(t, "Portfolio Overview", w.Response)
					require.Len(t, w.Balances, 1)
					require.NotNil(t, w.WidgetConfig)
				default:
					require.False(t, w.IsBuy)
					require.NotEmpty(t, w.Timeframe)
					require.NotEmpty(t, w.StartDate)
					require.NotEmpty(t, w.EndDate)
					if tf == nil || *tf == "" {
						require.Equal(t, "1d", w.Timeframe)
						require.Equal(t, "2024-02-29", w.StartDate)
						require.Equal(t, "2024-03-31", w.EndDate)
					}
				}
			}
		}
	}
}

func TestPortfolioWidgetOnlyTypeTouchingExchange(t *testing.T) {
	ex := newFakeExchange()
	g := newGateway(ex)

	for _, wt := range []domain.WidgetType{domain.WidgetQuickTrade, domain.WidgetProfitLoss, domain.WidgetMarketOverview} {
		_, err := g.CreateWidget(context.Background(), domain.WidgetRequest{Type: wt, Assets: []string{"btc"}})
		require.NoError(t, err)
	}
	require.Empty(t, ex.calls)

	_, err := g.CreateWidget(context.Background(), domain.WidgetRequest{Type: domain.WidgetPortfolio})
	require.Error(t, err)
	require.Equal(t, 1, ex.count(http.MethodGet, "/api/v3/account"))
}
