package exchange

import (
	"fmt"

	"spotarb/internal/model"
)

type codeInfo struct {
	kind   model.ErrorKind
	reason string
}

// Classifier maps one venue's error codes onto the shared taxonomy so that
// callers never branch on venue-specific strings.
type Classifier struct {
	venue string
	codes map[string]codeInfo
}

// Classify returns the kind and a human-readable reason for code. Unknown
// codes fall back to the venue's own message.
func (c Classifier) Classify(code, msg string) (model.ErrorKind, string) {
	if info, ok := c.codes[code]; ok {
		if msg != "" && msg != info.reason {
			return info.kind, fmt.Sprintf("%s: %s", info.reason, msg)
		}
		return info.kind, info.reason
	}
	if msg == "" {
		msg = "unrecognised error code " + code
	}
	return model.KindUnknown, msg
}

// Describe builds an api-stage descriptor for a venue failure code.
func (c Classifier) Describe(code, msg, raw string) *model.ErrorDescriptor {
	kind, reason := c.Classify(code, msg)
	return &model.ErrorDescriptor{
		Kind:      kind,
		Venue:     c.venue,
		Stage:     model.StageAPI,
		VenueCode: code,
		Message:   reason,
		RawBody:   raw,
	}
}

// OKXClassifier covers the v5 REST error codes the bot can hit.
var OKXClassifier = Classifier{
	venue: okxName,
	codes: map[string]codeInfo{
		"50004": {model.KindTimeout, "endpoint request timeout"},
		"50011": {model.KindRateLimited, "request rate limit reached"},
		"50013": {model.KindRateLimited, "system busy"},
		"50061": {model.KindRateLimited, "sub-account rate limit reached"},
		"50014": {model.KindInvalidParameters, "required parameter missing"},
		"50102": {model.KindInvalidParameters, "request timestamp expired"},
		"50100": {model.KindTradingSuspended, "api key frozen"},
		"50103": {model.KindMissingCredentials, "OK-ACCESS-KEY header missing"},
		"50104": {model.KindMissingCredentials, "OK-ACCESS-PASSPHRASE header missing"},
		"50105": {model.KindMissingCredentials, "OK-ACCESS-PASSPHRASE incorrect"},
		"50111": {model.KindMissingCredentials, "invalid OK-ACCESS-KEY"},
		"50113": {model.KindMissingCredentials, "invalid signature"},
		"51000": {model.KindInvalidParameters, "parameter error"},
		"51001": {model.KindInvalidParameters, "instrument does not exist"},
		"51020": {model.KindInvalidParameters, "order amount below minimum"},
		"51008": {model.KindInsufficientBalance, "insufficient balance"},
		"51119": {model.KindInsufficientBalance, "insufficient balance for order"},
		"51024": {model.KindTradingSuspended, "trading account frozen"},
		"51087": {model.KindTradingSuspended, "instrument delisted"},
		"51155": {model.KindTradingSuspended, "trading restricted for this instrument"},
	},
}

// KuCoinClassifier covers the spot REST error codes the bot can hit.
var KuCoinClassifier = Classifier{
	venue: kucoinName,
	codes: map[string]codeInfo{
		"400001": {model.KindMissingCredentials, "authentication header missing"},
		"400002": {model.KindInvalidParameters, "invalid KC-API-TIMESTAMP"},
		"400003": {model.KindMissingCredentials, "KC-API-KEY does not exist"},
		"400004": {model.KindMissingCredentials, "invalid KC-API-PASSPHRASE"},
		"400005": {model.KindMissingCredentials, "invalid signature"},
		"400006": {model.KindMissingCredentials, "ip not whitelisted"},
		"400007": {model.KindMissingCredentials, "access denied"},
		"400100": {model.KindInvalidParameters, "parameter error"},
		"900001": {model.KindInvalidParameters, "symbol does not exist"},
		"429000": {model.KindRateLimited, "too many requests"},
		"200004": {model.KindInsufficientBalance, "balance insufficient"},
		"600203": {model.KindTradingSuspended, "symbol cannot be traded"},
	},
}
