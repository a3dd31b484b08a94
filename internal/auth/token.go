// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultTokenTTL    = time.Hour
	DefaultTokenIssuer = "schoolapi"
)

// Identity is the verified subject of a session token.
type Identity struct {
	UserID    ulid.ULID
	ExpiresAt time.Time
}

// Claims is the JWT payload of a session token.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenTTL sets the token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIssuer sets the iss claim written into tokens.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		s.issuer = issuer
	}
}

// TokenService issues and verifies stateless HS256 session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenService creates a TokenService. An empty secret is rejected with
// ErrSecretMissing; callers treat that as fatal at startup.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, oops.Code("TOKEN_SECRET_MISSING").Wrap(ErrSecretMissing)
	}
	s := &TokenService{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		issuer: DefaultTokenIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for userID that expires after the configured TTL.
func (s *TokenService) Issue(userID ulid.ULID) (string, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return "", oops.Code("TOKEN_ISSUE_FAILED").Errorf("user id is required")
	}
	now := s.now()
	sub := userID.String()
	claims := Claims{
		UserID: sub,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("user_id", sub).Wrap(err)
	}
	return signed, nil
}

// Verify checks a token's signature and expiry and returns its identity.
// Failures are one of ErrTokenMissing, ErrTokenMalformed, ErrTokenExpired
// or ErrTokenInvalidSignature.
func (s *TokenService) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, oops.Code("TOKEN_MISSING").Wrap(ErrTokenMissing)
	}

	if s.signatureMismatch(token) {
		return Identity{}, oops.Code("TOKEN_INVALID_SIGNATURE").Wrap(ErrTokenInvalidSignature)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return Identity{}, classifyTokenError(err)
	}
	if !parsed.Valid {
		return Identity{}, oops.Code("TOKEN_INVALID").Wrap(ErrTokenInvalidSignature)
	}

	sub := claims.Subject
	if sub == "" {
		sub = claims.UserID
	}
	id, err := ulid.ParseStrict(sub)
	if err != nil {
		return Identity{}, oops.Code("TOKEN_MALFORMED").With("reason", "subject").Wrap(ErrTokenMalformed)
	}
	return Identity{UserID: id, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// signatureMismatch reports whether token has the three-segment shape and
// a decodable signature that is not the HS256 MAC of its header and payload.
// Tokens that do not get that far are left to the parser, which reports them
// as malformed. Checking the MAC first keeps a tampered header or payload
// from surfacing as a decode failure.
func (s *TokenService) signatureMismatch(token string) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	dot := strings.LastIndexByte(token, '.')
	encoded := token[dot+1:]
	sig, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token[:dot]))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return true
	}
	// Non-canonical trailing bits decode to the same bytes.
	return base64.RawURLEncoding.EncodeToString(sig) != encoded
}

// classifyTokenError maps jwt parse errors onto the token error kinds.
func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code("TOKEN_EXPIRED").Wrap(ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return oops.Code("TOKEN_INVALID_SIGNATURE").Wrap(ErrTokenInvalidSignature)
	default:
		return oops.Code("TOKEN_MALFORMED").With("reason", err.Error()).Wrap(ErrTokenMalformed)
	}
}
