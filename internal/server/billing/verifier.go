package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/dmitrijs2005/palette/internal/common"
)

// Verifier authenticates webhook payloads with the endpoint secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify checks signature over the raw payload. Any failure, including a
// missing secret, is ErrSignatureVerificationFailed. The body is not parsed.
func (v *Verifier) Verify(payload []byte, signature string) error {
	if v.secret == "" {
		return fmt.Errorf("%w: webhook secret not configured", common.ErrSignatureVerificationFailed)
	}
	if err := webhook.ValidatePayload(payload, signature, v.secret); err != nil {
		return fmt.Errorf("%w: %w", common.ErrSignatureVerificationFailed, err)
	}
	return nil
}
