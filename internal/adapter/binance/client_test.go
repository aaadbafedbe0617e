package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"investly/internal/domain"
)

func TestSignerIsDeterministic(t *testing.T) {
	s, err := NewSigner("secret")
	require.NoError(t, err)

	query := "symbol=BTCUSDT&side=BUY&type=MARKET&quantity=0.01&timestamp=1700000000000"
	first := s.Sign(query)
	require.Equal(t, first, s.Sign(query))
	require.Len(t, first, 64)
	require.Equal(t, strings.ToLower(first), first)
	require.NotEqual(t, first, s.Sign(query+"0"))
}

func TestSignerKnownVector(t *testing.T) {
	// Example from the Binance API documentation
	s, err := NewSigner("NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j")
	require.NoError(t, err)

	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	require.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", s.Sign(query))
}

func TestNewSignerRejectsEmptySecret(t *testing.T) {
	_, err := NewSigner("")
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{APISecret: "s"})
	require.True(t, domain.IsKind(err, domain.KindConfiguration))

	_, err = NewClient(Config{APIKey: "k"})
	require.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret", RequestsPerSecond: 1000})
	require.NoError(t, err)
	return c
}

func TestSignedRequestCarriesSkewCorrectedTimestampAndSignature(t *testing.T) {
	local := time.UnixMilli(1_700_000_000_000)
	var gotQuery, gotKey string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"serverTime":1700000005000}`))
	})
	mux.HandleFunc("/api/v3/account", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get(apiKeyHeader)
		_, _ = w.Write([]byte(`{"balances":[]}`))
	})

	c := newTestClient(t, mux)
	c.SetClock(func() time.Time { return local })

	var out struct {
		Balances []any `json:"balances"`
	}
	require.NoError(t, c.Signed(context.Background(), http.MethodGet, "/api/v3/account", url.Values{"recvWindow": {"5000"}}, &out))

	require.Equal(t, "key", gotKey)
	idx := strings.LastIndex(gotQuery, "&signature=")
	require.Positive(t, idx)

	signed := gotQuery[:idx]
	signature := gotQuery[idx+len("&signature="):]
	require.Equal(t, c.signer.Sign(signed), signature)

	values, err := url.ParseQuery(signed)
	require.NoError(t, err)
	require.Equal(t, "1700000005000", values.Get("timestamp"))
	require.Equal(t, "5000", values.Get("recvWindow"))
}

func TestServerTimeOffsetFallsBackToZero(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, mux)
	require.Zero(t, c.ServerTimeOffset(context.Background()))

	garbled := http.NewServeMux()
	garbled.HandleFunc("/api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	c = newTestClient(t, garbled)
	require.Zero(t, c.ServerTimeOffset(context.Background()))
}

func TestSignedRequestProceedsWhenTimeUnavailable(t *testing.T) {
	local := time.UnixMilli(1_700_000_000_000)
	var gotTimestamp string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		gotTimestamp = r.URL.Query().Get("timestamp")
		_, _ = w.Write([]byte(`{"orderId":1}`))
	})

	c := newTestClient(t, mux)
	c.SetClock(func() time.Time { return local })
	require.NoError(t, c.Signed(context.Background(), http.MethodDelete, "/api/v3/order", url.Values{"orderId": {"1"}}, nil))
	require.Equal(t, "1700000000000", gotTimestamp)
}

func TestPublicRequestIsUnsigned(t *testing.T) {
	var calls atomic.Int32
	var gotKey, gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gotKey = r.Header.Get(apiKeyHeader)
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"42000.5"}`))
	})
	c := newTestClient(t, mux)

	var out struct {
		Price string `json:"price"`
	}
	require.NoError(t, c.Public(context.Background(), "/api/v3/ticker/price", url.Values{"symbol": {"BTCUSDT"}}, &out))
	require.Equal(t, "42000.5", out.Price)
	require.EqualValues(t, 1, calls.Load())
	require.Empty(t, gotKey)
	require.Equal(t, "symbol=BTCUSDT", gotQuery)
}

func TestNonSuccessStatusIsProviderRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance"}`))
	})
	c := newTestClient(t, mux)

	err := c.Signed(context.Background(), http.MethodPost, "/api/v3/order", nil, nil)
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindProviderRejected))
	require.Contains(t, err.Error(), "insufficient balance")
	require.Contains(t, err.Error(), "http=400")
}

func TestTransportFailureIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: base, APIKey: "k", APISecret: "s", Timeout: time.Second})
	require.NoError(t, err)

	err = c.Public(context.Background(), "/api/v3/ticker/price", nil, nil)
	require.True(t, domain.IsKind(err, domain.KindNetworkFailure))
}
