package subscribers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Signer issues and checks the tokens carried by unsubscribe links.
type Signer struct {
	key []byte
}

// NewSigner returns a Signer keyed by secret.
func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

// Token returns the unsubscribe token for email.
func (s *Signer) Token(email string) string {
	return base64.RawURLEncoding.EncodeToString(s.mac(email))
}

// Valid reports whether token was issued for email.
func (s *Signer) Valid(email, token string) bool {
	got, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(got, s.mac(email))
}

func (s *Signer) mac(email string) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte("unsubscribe:" + strings.ToLower(strings.TrimSpace(email))))
	return m.Sum(nil)
}
