package validator

import (
	"regexp"

	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/model"
)

var suiAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// SignatureValidator checks order authenticity. Verification is side-effect
// free and deterministic, so it is safe to call any number of times.
type SignatureValidator struct {
	logger *zap.Logger
}

func NewSignatureValidator(logger *zap.Logger) *SignatureValidator {
	return &SignatureValidator{logger: logger}
}

// Verify dispatches on the order's signature scheme.
func (v *SignatureValidator) Verify(order *model.Order) bool {
	switch order.SignatureScheme {
	case model.SignatureSchemeEIP712:
		return v.verifyEIP712(order)
	case model.SignatureSchemeSui:
		return v.verifySui(order)
	default:
		v.logger.Warn("Unknown signature scheme", zap.String("scheme", order.SignatureScheme))
		return false
	}
}

// verifySui is a structural well-formedness check only: non-empty signature and
// a sui-shaped requester address. Full cryptographic verification of sui object
// signatures is a known gap.
func (v *SignatureValidator) verifySui(order *model.Order) bool {
	if order.Signature == "" {
		return false
	}
	return suiAddressPattern.MatchString(order.Requester)
}
