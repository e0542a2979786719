// Package gateway issues payment intents and verifies provider webhooks.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tableside/api/internal/enum"
)

// IntentParams describes the amount a guest is about to pay.
type IntentParams struct {
	OrderID uuid.UUID
	Amount  decimal.Decimal
}

// Intent is the provider-side handle returned to the guest client.
type Intent struct {
	ID           string
	ClientSecret string
}

// Gateway creates payment intents. A hosted-provider SDK adapter satisfies
// the same interface.
type Gateway interface {
	Method() string
	CreateIntent(ctx context.Context, p IntentParams) (Intent, error)
}

var ErrInvalidAmount = errors.New("gateway: amount must be > 0")

// HMACGateway issues intents locally. Client secrets are derived from the
// provider secret so they cannot be guessed from the intent id.
type HMACGateway struct {
	method string
	secret []byte
	newID  func() uuid.UUID
}

// NewHMACGateway creates an HMACGateway for a payment method.
func NewHMACGateway(method, secret string) *HMACGateway {
	return &HMACGateway{method: method, secret: []byte(secret), newID: uuid.New}
}

func (g *HMACGateway) Method() string { return g.method }

func (g *HMACGateway) CreateIntent(ctx context.Context, p IntentParams) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}
	if !p.Amount.IsPositive() {
		return Intent{}, ErrInvalidAmount
	}
	id := "pi_" + strings.ReplaceAll(g.newID().String(), "-", "")

	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(id + ":" + p.OrderID.String() + ":" + p.Amount.StringFixed(2)))
	sig := hex.EncodeToString(mac.Sum(nil))

	return Intent{ID: id, ClientSecret: id + "_secret_" + sig[:24]}, nil
}

// ProviderMethod maps a webhook provider path segment to a payment method.
func ProviderMethod(provider string) (string, bool) {
	switch strings.ToLower(provider) {
	case "stripe":
		return enum.PaymentMethodStripe, true
	case "momo":
		return enum.PaymentMethodMomo, true
	case "vnpay":
		return enum.PaymentMethodVNPay, true
	case "zalopay":
		return enum.PaymentMethodZaloPay, true
	}
	return "", false
}
