package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrade_Finish(t *testing.T) {
	now := time.Now()

	t.Run("both legs executed", func(t *testing.T) {
		tr := Trade{ID: "a", Status: TradePending, BuyExecuted: true, SellExecuted: true}
		require.NoError(t, tr.Finish(now))
		assert.Equal(t, TradeCompleted, tr.Status)
		assert.False(t, tr.Unhedged())
		require.NotNil(t, tr.CompletedAt)
	})

	t.Run("bought but not sold", func(t *testing.T) {
		tr := Trade{ID: "b", Status: TradePending, BuyExecuted: true}
		require.NoError(t, tr.Finish(now))
		assert.Equal(t, TradeFailed, tr.Status)
		assert.True(t, tr.Unhedged())
	})

	t.Run("terminal trades are immutable", func(t *testing.T) {
		tr := Trade{ID: "c", Status: TradeFailed}
		err := tr.Finish(now)
		assert.True(t, errors.Is(err, ErrTerminalTrade))
		assert.Equal(t, TradeFailed, tr.Status)
	})
}

func TestErrorDescriptor_Error(t *testing.T) {
	d := &ErrorDescriptor{Kind: KindInsufficientBalance, Venue: "okx", VenueCode: "51008", Message: "balance"}
	assert.Equal(t, "okx insufficient_balance (code 51008): balance", d.Error())

	d = &ErrorDescriptor{Kind: KindHTTPError, Venue: "kucoin", HTTPStatus: 502, Message: "bad gateway"}
	assert.Equal(t, "kucoin http_error (HTTP 502): bad gateway", d.Error())
}
