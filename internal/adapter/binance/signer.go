package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"investly/internal/domain"
)

// Signer computes Binance request signatures
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer. A missing secret is a configuration fault.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, domain.NewError(domain.KindConfiguration, "binance API secret is required", nil)
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the lowercase hex HMAC-SHA256 of the query string
func (s *Signer) Sign(query string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
