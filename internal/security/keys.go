package security

import (
	"crypto/sha256"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrInvalidKey is returned when the signing secret is missing or too short.
var ErrInvalidKey = errors.New("invalid key")

const (
	minSecretLen  = 16
	derivedKeyLen = 32

	accessKeyInfo  = "outreach-tracker access token v1"
	refreshKeyInfo = "outreach-tracker refresh token v1"
)

// SigningKeys are the HMAC keys for access and refresh tokens. They are derived from one shared
// secret so that an access token never verifies as a refresh token and vice versa.
type SigningKeys struct {
	Access  []byte
	Refresh []byte
}

// DeriveSigningKeys expands secret into independent access and refresh keys with HKDF-SHA256.
func DeriveSigningKeys(secret string) (SigningKeys, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretLen {
		return SigningKeys{}, ErrInvalidKey
	}
	access, err := expand(secret, accessKeyInfo)
	if err != nil {
		return SigningKeys{}, err
	}
	refresh, err := expand(secret, refreshKeyInfo)
	if err != nil {
		return SigningKeys{}, err
	}
	return SigningKeys{Access: access, Refresh: refresh}, nil
}

func expand(secret, info string) ([]byte, error) {
	key := make([]byte, derivedKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}
