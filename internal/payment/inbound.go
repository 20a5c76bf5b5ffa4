package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/trustflowpay/internal/order"
)

var (
	// ErrReferenceMissing is returned when a message carries no ORDER_ID.
	ErrReferenceMissing = errors.New("payment: ORDER_ID missing")
	// ErrHashMissing is returned for unsigned messages when hashes are required.
	ErrHashMissing = errors.New("payment: HASH missing")
)

// Authenticator resolves inbound messages to orders and checks their HASH
// against the credentials snapshotted on the order.
type Authenticator struct {
	Settings Settings
	Store    order.Store
	Logger   zerolog.Logger
}

// Lookup finds the order named by the message's ORDER_ID reference.
func (a Authenticator) Lookup(ctx context.Context, p Params) (order.Order, error) {
	ref := strings.TrimSpace(p.Get(FieldOrderID))
	if ref == "" {
		return order.Order{}, ErrReferenceMissing
	}
	return a.Store.FindByMeta(ctx, MetaReference, ref)
}

// Verify checks the message HASH. A message without HASH is accepted with a
// warning unless RequireHash is set.
func (a Authenticator) Verify(o order.Order, p Params, channel Channel) error {
	claimed := strings.TrimSpace(p.Get(FieldHash))
	if claimed == "" {
		if a.Settings.RequireHash {
			a.Logger.Error().Str("order_id", o.ID).Str("channel", string(channel)).Msg("no HASH in response, rejecting")
			return ErrHashMissing
		}
		a.Logger.Warn().Str("order_id", o.ID).Str("channel", string(channel)).Msg("no HASH in response, proceeding without hash validation")
		return nil
	}
	creds := a.Settings.ForOrder(o)
	if !NewSigner(creds.SecretKey, a.Logger).Verify(p, claimed) {
		return ErrInvalidSignature
	}
	return nil
}
