package security

import "time"

// TestTokenSecret is a signing secret for unit tests only. Do not use in production.
const TestTokenSecret = "test-secret-do-not-use-in-production"

// NewTestTokenIssuer returns a TokenIssuer using TestTokenSecret, a 15m access TTL and a 6h refresh TTL.
// For unit tests only.
func NewTestTokenIssuer() *TokenIssuer {
	i, err := NewTokenIssuer(TestTokenSecret, "test-issuer", 15*time.Minute, 6*time.Hour)
	if err != nil {
		panic(err)
	}
	return i
}
