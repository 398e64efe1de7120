package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"spotarb/internal/model"
	"spotarb/internal/signing"
)

const (
	okxName        = "okx"
	okxSuccessCode = "0"
	okxSymbolSfx   = "-USDT"
	okxOrderPath   = "/api/v5/trade/order"
	okxBalancePath = "/api/v5/account/balance?ccy="
	okxTickersPath = "/api/v5/market/tickers?instType=SPOT"
	okxTimeLayout  = "2006-01-02T15:04:05.000Z"
)

// OKXClient implements the ExchangeClient interface for OKX spot.
type OKXClient struct {
	rest   *restClient
	logger *slog.Logger
}

// NewOKXClient creates a new OKXClient.
func NewOKXClient(logger *slog.Logger, baseURL string, creds signing.Credentials, opts ...Option) *OKXClient {
	c := &OKXClient{logger: logger}
	c.rest = newRESTClient(okxName, baseURL, creds, logger, opts)
	c.rest.sign = c.signRequest
	return c
}

func (c *OKXClient) GetName() string {
	return okxName
}

// signRequest sets the OK-ACCESS-* headers. The passphrase is sent as-is,
// which is what the v5 API expects.
func (c *OKXClient) signRequest(req *http.Request, method, path string, body []byte) {
	ts := c.rest.now().UTC().Format(okxTimeLayout)
	req.Header.Set("OK-ACCESS-KEY", c.rest.creds.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", signing.Sign(c.rest.creds.Secret, ts, method, path, string(body)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.rest.creds.Passphrase)
}

type okxOrderRequest struct {
	InstID  string `json:"instId"`
	TdMode  string `json:"tdMode"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Sz      string `json:"sz"`
	TgtCcy  string `json:"tgtCcy"`
}

type okxOrderResponse struct {
	Code flexString `json:"code"`
	Msg  string     `json:"msg"`
	Data []struct {
		OrdID string     `json:"ordId"`
		SCode flexString `json:"sCode"`
		SMsg  string     `json:"sMsg"`
	} `json:"data"`
}

// PlaceMarketOrder sends a cash-mode market order sized in base units.
func (c *OKXClient) PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, amount decimal.Decimal) model.OrderResult {
	if !side.Valid() {
		return model.OrderResult{Error: model.NewDescriptor(model.KindInvalidParameters, okxName, model.StagePrecondition, "unknown order side "+string(side))}
	}
	body, err := json.Marshal(okxOrderRequest{
		InstID:  symbol + okxSymbolSfx,
		TdMode:  "cash",
		Side:    string(side),
		OrdType: "market",
		Sz:      amount.String(),
		TgtCcy:  "base_ccy",
	})
	if err != nil {
		return model.OrderResult{Error: model.NewDescriptor(model.KindInvalidParameters, okxName, model.StagePrecondition, err.Error())}
	}

	raw, desc := c.rest.do(ctx, "place_order", http.MethodPost, okxOrderPath, body, true)
	if desc != nil {
		return model.OrderResult{Error: desc, RawResponse: desc.RawBody}
	}
	return c.adaptOrder(raw)
}

func (c *OKXClient) adaptOrder(raw []byte) model.OrderResult {
	rawStr := c.rest.raw(raw)

	var resp okxOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.OrderResult{Error: c.rest.parseError(raw, err), RawResponse: rawStr}
	}

	// Order rejections come back as code "1" with the reason in sCode.
	if len(resp.Data) > 0 && resp.Data[0].SCode != "" && resp.Data[0].SCode != okxSuccessCode {
		return model.OrderResult{
			Error:       OKXClassifier.Describe(string(resp.Data[0].SCode), c.rest.redact(resp.Data[0].SMsg), rawStr),
			RawResponse: rawStr,
		}
	}
	if resp.Code != okxSuccessCode {
		return model.OrderResult{Error: OKXClassifier.Describe(string(resp.Code), c.rest.redact(resp.Msg), rawStr), RawResponse: rawStr}
	}
	if len(resp.Data) == 0 || resp.Data[0].OrdID == "" {
		return model.OrderResult{Error: c.rest.malformedSuccess(raw, "order accepted without ordId"), RawResponse: rawStr}
	}
	return model.OrderResult{Success: true, OrderID: resp.Data[0].OrdID, RawResponse: rawStr}
}

type okxBalanceResponse struct {
	Code flexString `json:"code"`
	Msg  string     `json:"msg"`
	Data []struct {
		Details []struct {
			Ccy      string `json:"ccy"`
			AvailBal string `json:"availBal"`
		} `json:"details"`
	} `json:"data"`
}

// AvailableBalance returns the trading account's available balance of asset.
func (c *OKXClient) AvailableBalance(ctx context.Context, asset string) model.BalanceResult {
	raw, desc := c.rest.do(ctx, "balance", http.MethodGet, okxBalancePath+asset, nil, true)
	if desc != nil {
		return model.BalanceResult{Error: desc, RawResponse: desc.RawBody}
	}
	rawStr := c.rest.raw(raw)

	var resp okxBalanceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.BalanceResult{Error: c.rest.parseError(raw, err), RawResponse: rawStr}
	}
	if resp.Code != okxSuccessCode {
		return model.BalanceResult{Error: OKXClassifier.Describe(string(resp.Code), c.rest.redact(resp.Msg), rawStr), RawResponse: rawStr}
	}
	for _, account := range resp.Data {
		for _, d := range account.Details {
			if d.Ccy != asset {
				continue
			}
			avail, err := decimal.NewFromString(d.AvailBal)
			if err != nil {
				return model.BalanceResult{
					Error:       c.rest.malformedSuccess(raw, fmt.Sprintf("availBal %q is not a number", d.AvailBal)),
					RawResponse: rawStr,
				}
			}
			return model.BalanceResult{Success: true, Available: avail, RawResponse: rawStr}
		}
	}
	return model.BalanceResult{Error: c.rest.malformedSuccess(raw, "no "+asset+" balance in response"), RawResponse: rawStr}
}

type okxTickersResponse struct {
	Code flexString `json:"code"`
	Msg  string     `json:"msg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
	} `json:"data"`
}

// Tickers returns the last price of every USDT spot instrument.
func (c *OKXClient) Tickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw, desc := c.rest.do(ctx, "tickers", http.MethodGet, okxTickersPath, nil, false)
	if desc != nil {
		return nil, desc
	}

	var resp okxTickersResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, c.rest.parseError(raw, err)
	}
	if resp.Code != okxSuccessCode {
		return nil, OKXClassifier.Describe(string(resp.Code), c.rest.redact(resp.Msg), c.rest.raw(raw))
	}

	prices := make(map[string]decimal.Decimal, len(resp.Data))
	for _, t := range resp.Data {
		if !strings.HasSuffix(t.InstID, okxSymbolSfx) {
			continue
		}
		price, err := decimal.NewFromString(t.Last)
		if err != nil || !price.IsPositive() {
			continue
		}
		prices[strings.TrimSuffix(t.InstID, okxSymbolSfx)] = price
	}
	return prices, nil
}

var _ ExchangeClient = (*OKXClient)(nil)
