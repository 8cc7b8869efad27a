package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, has a bad signature or wrong issuer.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token verifies but its exp is in the past.
	// Callers may attempt a refresh; ErrInvalidToken is terminal.
	ErrTokenExpired = errors.New("token expired")
)

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID       int64    `json:"user_id"`
	EID          string   `json:"eid"`
	Roles        []string `json:"roles"`
	RefreshToken string   `json:"refresh_token"`
}

// HasRole reports whether name is among the token roles.
func (c *AccessClaims) HasRole(name string) bool {
	for _, r := range c.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// RefreshClaims holds JWT claims for the refresh token. RefreshToken is the opaque value
// stored on the user record.
type RefreshClaims struct {
	jwt.RegisteredClaims
	RefreshToken string `json:"refresh_token"`
}

// AccessSubject is the identity embedded in an access token.
type AccessSubject struct {
	UserID int64
	EID    string
	Roles  []string
	// RefreshToken is the serialized refresh JWT handed to the client alongside the access token.
	RefreshToken string
}

// TokenIssuer issues and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	keys       SigningKeys
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer derives signing keys from secret and returns a TokenIssuer.
func NewTokenIssuer(secret, issuer string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	keys, err := DeriveSigningKeys(secret)
	if err != nil {
		return nil, err
	}
	return &TokenIssuer{
		keys:       keys,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock returns a copy of the issuer that reads the current time from now.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	c := *i
	c.now = now
	return &c
}

// AccessTTL returns the access token lifetime.
func (i *TokenIssuer) AccessTTL() time.Duration { return i.accessTTL }

// IssueAccess signs an access token for sub. Returns the token and its expiration.
func (i *TokenIssuer) IssueAccess(sub AccessSubject) (string, time.Time, error) {
	now := i.issuedAt()
	expiresAt := now.Add(i.accessTTL)
	roles := sub.Roles
	if roles == nil {
		roles = []string{}
	}
	claims := AccessClaims{
		RegisteredClaims: i.registered(now, expiresAt),
		UserID:           sub.UserID,
		EID:              sub.EID,
		Roles:            roles,
		RefreshToken:     sub.RefreshToken,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.keys.Access)
	return token, expiresAt, err
}

// IssueRefresh signs a refresh token carrying the stored refresh value.
func (i *TokenIssuer) IssueRefresh(value string) (string, time.Time, error) {
	if value == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	now := i.issuedAt()
	expiresAt := now.Add(i.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: i.registered(now, expiresAt),
		RefreshToken:     value,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.keys.Refresh)
	return token, expiresAt, err
}

// VerifyAccess checks signature, issuer and expiration of an access token.
func (i *TokenIssuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(tokenString, claims, i.keys.Access); err != nil {
		return nil, err
	}
	if claims.UserID <= 0 || claims.EID == "" {
		return nil, ErrInvalidToken
	}
	if claims.Roles == nil {
		claims.Roles = []string{}
	}
	return claims, nil
}

// VerifyRefresh checks signature, issuer and expiration of a refresh token.
// A verified token with no refresh value returns claims with an empty RefreshToken; callers decide.
func (i *TokenIssuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(tokenString, claims, i.keys.Refresh); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *TokenIssuer) parse(tokenString string, claims jwt.Claims, key []byte) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// issuedAt returns the current time at the precision NumericDate encodes, so the expiration handed
// back to callers matches the exp claim exactly.
func (i *TokenIssuer) issuedAt() time.Time {
	return i.now().UTC().Truncate(jwt.TimePrecision)
}

func (i *TokenIssuer) registered(now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

// GenerateRefreshValue returns a new opaque refresh value (32 random bytes, hex encoded).
func GenerateRefreshValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
