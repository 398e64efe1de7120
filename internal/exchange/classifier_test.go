package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"spotarb/internal/model"
)

func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		name       string
		classifier Classifier
		code       string
		want       model.ErrorKind
	}{
		{"okx insufficient balance", OKXClassifier, "51008", model.KindInsufficientBalance},
		{"okx rate limit", OKXClassifier, "50011", model.KindRateLimited},
		{"okx bad signature", OKXClassifier, "50113", model.KindMissingCredentials},
		{"okx unknown instrument", OKXClassifier, "51001", model.KindInvalidParameters},
		{"okx suspended", OKXClassifier, "51155", model.KindTradingSuspended},
		{"kucoin insufficient balance", KuCoinClassifier, "200004", model.KindInsufficientBalance},
		{"kucoin rate limit", KuCoinClassifier, "429000", model.KindRateLimited},
		{"kucoin missing header", KuCoinClassifier, "400001", model.KindMissingCredentials},
		{"kucoin cannot trade", KuCoinClassifier, "600203", model.KindTradingSuspended},
		{"unrecognised", KuCoinClassifier, "999999", model.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, reason := tt.classifier.Classify(tt.code, "")
			assert.Equal(t, tt.want, kind)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestClassifier_Describe(t *testing.T) {
	d := OKXClassifier.Describe("51008", "Insufficient USDT balance", "{}")
	assert.Equal(t, model.KindInsufficientBalance, d.Kind)
	assert.Equal(t, "okx", d.Venue)
	assert.Equal(t, model.StageAPI, d.Stage)
	assert.Equal(t, "insufficient balance: Insufficient USDT balance", d.Message)

	d = KuCoinClassifier.Describe("777", "venue says no", "")
	assert.Equal(t, model.KindUnknown, d.Kind)
	assert.Equal(t, "venue says no", d.Message)
}
