package service

import (
	"context"
	"net/url"
	"sync"

	json "github.com/goccy/go-json"

	"investly/internal/domain"
)

type exchangeCall struct {
	method string
	path   string
	params url.Values
	signed bool
}

type exchangeHandler func(params url.Values) (string, error)

// fakeExchange answers requests from canned JSON keyed by "METHOD path"
type fakeExchange struct {
	mu       sync.Mutex
	handlers map[string]exchangeHandler
	calls    []exchangeCall
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{handlers: make(map[string]exchangeHandler)}
}

func (f *fakeExchange) on(method, path string, h exchangeHandler) {
	f.handlers[method+" "+path] = h
}

func (f *fakeExchange) reply(method, path, body string) {
	f.on(method, path, func(url.Values) (string, error) { return body, nil })
}

func (f *fakeExchange) Public(ctx context.Context, path string, params url.Values, out any) error {
	return f.do("GET", path, params, false, out)
}

func (f *fakeExchange) Signed(ctx context.Context, method, path string, params url.Values, out any) error {
	return f.do(method, path, params, true, out)
}

func (f *fakeExchange) do(method, path string, params url.Values, signed bool, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, exchangeCall{method: method, path: path, params: params, signed: signed})
	h, ok := f.handlers[method+" "+path]
	f.mu.Unlock()

	if !ok {
		return &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 404, Message: method + " " + path}
	}
	body, err := h(params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeExchange) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.method == method && c.path == path {
			n++
		}
	}
	return n
}

func (f *fakeExchange) lastCall(method, path string) (exchangeCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method && f.calls[i].path == path {
			return f.calls[i], true
		}
	}
	return exchangeCall{}, false
}

// prices serves /api/v3/ticker/price from a symbol->price table
func prices(table map[string]string) exchangeHandler {
	return func(params url.Values) (string, error) {
		symbol := params.Get("symbol")
		price, ok := table[symbol]
		if !ok {
			return "", &domain.Error{Kind: domain.KindProviderRejected, HTTPStatus: 400, Message: "Invalid symbol " + symbol}
		}
		return `{"symbol":"` + symbol + `","price":"` + price + `"}`, nil
	}
}
