package exchange

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"spotarb/internal/model"
	"spotarb/internal/signing"
)

var testCreds = signing.Credentials{APIKey: "okx-key-123", Secret: "okx-secret-456", Passphrase: "okx-pass-789"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 123000000, time.UTC)
}

func newOKXTestServer(t *testing.T, handler http.HandlerFunc) *OKXClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOKXClient(testLogger(), srv.URL, testCreds, WithClock(fixedClock), WithTimeout(time.Second))
}

func TestOKXClient_PlaceMarketOrder(t *testing.T) {
	t.Run("signed request and success", func(t *testing.T) {
		client := newOKXTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, okxOrderPath, r.URL.Path)
			assert.JSONEq(t, `{"instId":"XRP-USDT","tdMode":"cash","side":"buy","ordType":"market","sz":"4","tgtCcy":"base_ccy"}`, string(body))

			ts := "2024-03-01T12:00:00.123Z"
			assert.Equal(t, ts, r.Header.Get("OK-ACCESS-TIMESTAMP"))
			assert.Equal(t, testCreds.APIKey, r.Header.Get("OK-ACCESS-KEY"))
			assert.Equal(t, signing.Sign(testCreds.Secret, ts, http.MethodPost, okxOrderPath, string(body)), r.Header.Get("OK-ACCESS-SIGN"))

			_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"312269865356374016","sCode":"0","sMsg":""}]}`))
		})

		res := client.PlaceMarketOrder(context.Background(), "XRP", model.SideBuy, decimal.NewFromInt(4))
		require.True(t, res.Success, "%+v", res.Error)
		assert.Equal(t, "312269865356374016", res.OrderID)
		assert.Nil(t, res.Error)
	})

	t.Run("rejected with sCode", func(t *testing.T) {
		client := newOKXTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":"1","msg":"Operation failed.","data":[{"ordId":"","sCode":"51008","sMsg":"Order failed. Insufficient USDT balance in account."}]}`))
		})

		res := client.PlaceMarketOrder(context.Background(), "XRP", model.SideBuy, decimal.NewFromInt(4))
		assert.False(t, res.Success)
		require.NotNil(t, res.Error)
		assert.Equal(t, model.KindInsufficientBalance, res.Error.Kind)
		assert.Equal(t, model.StageAPI, res.Error.Stage)
		assert.Equal(t, "51008", res.Error.VenueCode)
	})

	t.Run("success code without order id", func(t *testing.T) {
		client := newOKXTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[]}`))
		})

		res := client.PlaceMarketOrder(context.Background(), "XRP", model.SideSell, decimal.NewFromInt(4))
		assert.False(t, res.Success)
		require.NotNil(t, res.Error)
		assert.Equal(t, model.KindMalformedResponse, res.Error.Kind)
		assert.Equal(t, model.StageMalformedSuccess, res.Error.Stage)
	})

	t.Run("unparseable body", func(t *testing.T) {
		client := newOKXTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		})

		res := client.PlaceMarketOrder(context.Background(), "XRP", model.SideBuy, decimal.NewFromInt(4))
		require.NotNil(t, res.Error)
		assert.Equal(t, model.KindMalformedResponse, res.Error.Kind)
		assert.Equal(t, model.StageParse, res.Error.Stage)
	})

	t.Run("non-2xx status", func(t *testing.T) {
		client := newOKXTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`upstream error`))
		})

		res := client.PlaceMarketOrder(context.Background(), "XRP", model.SideBuy, decimal.NewFromInt(4))
		require.NotNil(t, res.Error)
		assert.Equal(t, model.KindHTTPError, res.Error.Kind)
		assert.Equal(t, http.StatusBadGateway, res.Error.HTTPStatus)
	})

	t.Run("rate limited status", func(t *testing.T) {
		client := newOKXTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":"50011","msg":"Too Many Requests"}`))
		})

		res := client.PlaceMarketOrder(context.Background(), "XRP", model.SideBuy, decimal.NewFromInt(4))
		require.NotNil(t, res.Error)
		assert.Equal(t, model.KindRateLimited, res.Error.Kind)
		assert.Equal(t, "50011", res.Error.VenueCode)
	})

	t.Run("unknown side rejected before sending", func(t *testing.T) {
		client := newOKXTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected request to %s", r.URL.Path)
		})

		res := client.PlaceMarketOrder(context.Background(), "XRP", model.Side("short"), decimal.NewFromInt(4))
		assert.False(t, res.Success)
		require.NotNil(t, res.Error)
		assert.Equal(t, model.KindInvalidParameters, res.Error.Kind)
		assert.Equal(t, model.StagePrecondition, res.Error.Stage)
	})

	t.Run("secrets redacted from raw response", func(t *testing.T) {
		client := newOKXTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":"50111","msg":"Invalid OK-ACCESS-KEY okx-key-123","data":[]}`))
		})

		res := client.PlaceMarketOrder(context.Background(), "XRP", model.SideBuy, decimal.NewFromInt(4))
		require.NotNil(t, res.Error)
		assert.Equal(t, model.KindMissingCredentials, res.Error.Kind)
		assert.NotContains(t, res.RawResponse, testCreds.APIKey)
		assert.NotContains(t, res.Error.RawBody, testCreds.APIKey)
		assert.NotContains(t, res.Error.Message, testCreds.APIKey)
	})
}

func TestOKXClient_AvailableBalance(t *testing.T) {
	t.Run("reads availBal", func(t *testing.T) {
		client := newOKXTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "USDT", r.URL.Query().Get("ccy"))
			_, _ = w.Write([]byte(`{"code":"0","data":[{"details":[{"ccy":"USDT","availBal":"25.5"}]}]}`))
		})

		res := client.AvailableBalance(context.Background(), "USDT")
		require.True(t, res.Success)
		assert.True(t, decimal.RequireFromString("25.5").Equal(res.Available))
	})

	t.Run("missing asset is malformed", func(t *testing.T) {
		client := newOKXTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":"0","data":[{"details":[]}]}`))
		})

		res := client.AvailableBalance(context.Background(), "USDT")
		assert.False(t, res.Success)
		require.NotNil(t, res.Error)
		assert.Equal(t, model.StageMalformedSuccess, res.Error.Stage)
	})
}

func TestOKXClient_Tickers(t *testing.T) {
	client := newOKXTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("OK-ACCESS-SIGN"))
		_, _ = w.Write([]byte(`{"code":"0","data":[
			{"instId":"XRP-USDT","last":"0.52"},
			{"instId":"BTC-USDC","last":"60000"},
			{"instId":"DOGE-USDT","last":""},
			{"instId":"ADA-USDT","last":"0.45"}]}`))
	})

	prices, err := client.Tickers(context.Background())
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.True(t, decimal.RequireFromString("0.52").Equal(prices["XRP"]))
	assert.True(t, decimal.RequireFromString("0.45").Equal(prices["ADA"]))
}
