package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"spotarb/internal/model"
	"spotarb/internal/signing"
)

const (
	kucoinName        = "kucoin"
	kucoinSuccessCode = "200000"
	kucoinSymbolSfx   = "-USDT"
	kucoinOrderPath   = "/api/v1/orders"
	kucoinBalancePath = "/api/v1/accounts?type=trade&currency="
	kucoinTickersPath = "/api/v1/market/allTickers"
	kucoinKeyVersion  = "2"
)

// KuCoinClient implements the ExchangeClient interface for KuCoin spot.
type KuCoinClient struct {
	rest   *restClient
	logger *slog.Logger
}

// NewKuCoinClient creates a new KuCoinClient.
func NewKuCoinClient(logger *slog.Logger, baseURL string, creds signing.Credentials, opts ...Option) *KuCoinClient {
	c := &KuCoinClient{logger: logger}
	c.rest = newRESTClient(kucoinName, baseURL, creds, logger, opts)
	c.rest.sign = c.signRequest
	return c
}

func (c *KuCoinClient) GetName() string {
	return kucoinName
}

// signRequest sets the KC-API-* headers for a v2 key: the passphrase header
// carries an HMAC of the passphrase, never the passphrase itself.
func (c *KuCoinClient) signRequest(req *http.Request, method, path string, body []byte) {
	ts := strconv.FormatInt(c.rest.now().UnixMilli(), 10)
	req.Header.Set("KC-API-KEY", c.rest.creds.APIKey)
	req.Header.Set("KC-API-SIGN", signing.Sign(c.rest.creds.Secret, ts, method, path, string(body)))
	req.Header.Set("KC-API-TIMESTAMP", ts)
	req.Header.Set("KC-API-PASSPHRASE", signing.SignPassphrase(c.rest.creds.Secret, c.rest.creds.Passphrase))
	req.Header.Set("KC-API-KEY-VERSION", kucoinKeyVersion)
}

type kucoinOrderRequest struct {
	ClientOid string `json:"clientOid"`
	Side      string `json:"side"`
	Symbol    string `json:"symbol"`
	Type      string `json:"type"`
	Size      string `json:"size"`
}

type kucoinOrderResponse struct {
	Code flexString `json:"code"`
	Msg  string     `json:"msg"`
	Data *struct {
		OrderID string `json:"orderId"`
	} `json:"data"`
}

// PlaceMarketOrder sends a market order sized in base units.
func (c *KuCoinClient) PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, amount decimal.Decimal) model.OrderResult {
	if !side.Valid() {
		return model.OrderResult{Error: model.NewDescriptor(model.KindInvalidParameters, kucoinName, model.StagePrecondition, "unknown order side "+string(side))}
	}
	body, err := json.Marshal(kucoinOrderRequest{
		ClientOid: uuid.NewString(),
		Side:      string(side),
		Symbol:    symbol + kucoinSymbolSfx,
		Type:      "market",
		Size:      amount.String(),
	})
	if err != nil {
		return model.OrderResult{Error: model.NewDescriptor(model.KindInvalidParameters, kucoinName, model.StagePrecondition, err.Error())}
	}

	raw, desc := c.rest.do(ctx, "place_order", http.MethodPost, kucoinOrderPath, body, true)
	if desc != nil {
		return model.OrderResult{Error: desc, RawResponse: desc.RawBody}
	}
	return c.adaptOrder(raw)
}

func (c *KuCoinClient) adaptOrder(raw []byte) model.OrderResult {
	rawStr := c.rest.raw(raw)

	var resp kucoinOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.OrderResult{Error: c.rest.parseError(raw, err), RawResponse: rawStr}
	}
	if resp.Code != kucoinSuccessCode {
		return model.OrderResult{Error: KuCoinClassifier.Describe(string(resp.Code), c.rest.redact(resp.Msg), rawStr), RawResponse: rawStr}
	}
	if resp.Data == nil || resp.Data.OrderID == "" {
		return model.OrderResult{Error: c.rest.malformedSuccess(raw, "order accepted without orderId"), RawResponse: rawStr}
	}
	return model.OrderResult{Success: true, OrderID: resp.Data.OrderID, RawResponse: rawStr}
}

type kucoinAccountsResponse struct {
	Code flexString `json:"code"`
	Msg  string     `json:"msg"`
	Data []struct {
		Currency  string `json:"currency"`
		Type      string `json:"type"`
		Available string `json:"available"`
	} `json:"data"`
}

// AvailableBalance returns the trade account's available balance of asset.
func (c *KuCoinClient) AvailableBalance(ctx context.Context, asset string) model.BalanceResult {
	raw, desc := c.rest.do(ctx, "balance", http.MethodGet, kucoinBalancePath+asset, nil, true)
	if desc != nil {
		return model.BalanceResult{Error: desc, RawResponse: desc.RawBody}
	}
	rawStr := c.rest.raw(raw)

	var resp kucoinAccountsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.BalanceResult{Error: c.rest.parseError(raw, err), RawResponse: rawStr}
	}
	if resp.Code != kucoinSuccessCode {
		return model.BalanceResult{Error: KuCoinClassifier.Describe(string(resp.Code), c.rest.redact(resp.Msg), rawStr), RawResponse: rawStr}
	}
	for _, acct := range resp.Data {
		if acct.Currency != asset || acct.Type != "trade" {
			continue
		}
		avail, err := decimal.NewFromString(acct.Available)
		if err != nil {
			return model.BalanceResult{
				Error:       c.rest.malformedSuccess(raw, fmt.Sprintf("available %q is not a number", acct.Available)),
				RawResponse: rawStr,
			}
		}
		return model.BalanceResult{Success: true, Available: avail, RawResponse: rawStr}
	}
	return model.BalanceResult{Error: c.rest.malformedSuccess(raw, "no "+asset+" trade account in response"), RawResponse: rawStr}
}

type kucoinTickersResponse struct {
	Code flexString `json:"code"`
	Msg  string     `json:"msg"`
	Data struct {
		Ticker []struct {
			Symbol string `json:"symbol"`
			Last   string `json:"last"`
		} `json:"ticker"`
	} `json:"data"`
}

// Tickers returns the last price of every USDT spot symbol.
func (c *KuCoinClient) Tickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw, desc := c.rest.do(ctx, "tickers", http.MethodGet, kucoinTickersPath, nil, false)
	if desc != nil {
		return nil, desc
	}

	var resp kucoinTickersResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, c.rest.parseError(raw, err)
	}
	if resp.Code != kucoinSuccessCode {
		return nil, KuCoinClassifier.Describe(string(resp.Code), c.rest.redact(resp.Msg), c.rest.raw(raw))
	}

	prices := make(map[string]decimal.Decimal, len(resp.Data.Ticker))
	for _, t := range resp.Data.Ticker {
		if !strings.HasSuffix(t.Symbol, kucoinSymbolSfx) {
			continue
		}
		price, err := decimal.NewFromString(t.Last)
		if err != nil || !price.IsPositive() {
			continue
		}
		prices[strings.TrimSuffix(t.Symbol, kucoinSymbolSfx)] = price
	}
	return prices, nil
}

var _ ExchangeClient = (*KuCoinClient)(nil)
