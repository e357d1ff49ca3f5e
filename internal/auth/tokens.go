package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/recital-program/internal/model"
)

// ErrInvalidToken is returned for tokens that fail to parse or verify.
var ErrInvalidToken = errors.New("auth: invalid token")

// AccessToken is a signed JWT with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// RefreshToken is a random opaque token.  Only its hash is stored.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer returns an Issuer for the given secret and lifetimes.
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// NewAccessToken signs a token for the session.  Claims: sub, email and
// email_verified (when known), anon, exp and iat.
func (i *Issuer) NewAccessToken(s model.Session) (AccessToken, error) {
	now := i.now().UTC()
	exp := now.Add(i.accessTTL)
	claims := jwt.MapClaims{
		"sub":  s.Subject,
		"anon": s.Anonymous,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if s.Email != "" {
		claims["email"] = s.Email
		claims["email_verified"] = s.Verified
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw and returns the session it carries.
func (i *Issuer) ParseAccessToken(raw string) (model.Session, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !tok.Valid {
		return model.Session{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return model.Session{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return model.Session{}, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	verified, _ := claims["email_verified"].(bool)
	anon, _ := claims["anon"].(bool)
	return model.Session{Subject: sub, Email: email, Verified: verified && email != "", Anonymous: anon}, nil
}

// NewRefreshToken returns a random refresh token and its expiry.
func (i *Issuer) NewRefreshToken() (RefreshToken, error) {
	raw, err := randomHex(48)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: raw, Exp: i.now().UTC().Add(i.refreshTTL)}, nil
}

// HashRefreshRaw returns the hex SHA-256 of a raw refresh token.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
