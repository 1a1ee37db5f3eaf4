// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultAccessTokenTTL  = 24 * time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultTokenIssuer     = "warden"

	// MinSecretLength is the minimum HMAC secret length in bytes.
	MinSecretLength = 32
)

// Claims is the payload carried by access and refresh tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// PrincipalID parses the subject claim.
func (c *Claims) PrincipalID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID_SUBJECT").With("sub", c.Subject).Wrap(err)
	}
	return id, nil
}

// TokenSigner signs and verifies claims with a shared secret.
type TokenSigner interface {
	// Sign stamps iat/exp from ttl and returns the compact token.
	Sign(claims *Claims, secret []byte, ttl time.Duration) (string, error)

	// Verify checks signature, algorithm, issuer and expiry.
	Verify(token string, secret []byte) (*Claims, error)
}

// JWTSigner implements TokenSigner with HS256 JWTs.
type JWTSigner struct {
	issuer string
	clock  Clock
}

// NewJWTSigner creates a JWTSigner. A nil clock uses the system clock.
func NewJWTSigner(issuer string, clock Clock) *JWTSigner {
	if clock == nil {
		clock = SystemClock
	}
	if issuer == "" {
		issuer = DefaultTokenIssuer
	}
	return &JWTSigner{issuer: issuer, clock: clock}
}

// Sign signs claims with HS256.
func (s *JWTSigner) Sign(claims *Claims, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", oops.Code("TOKEN_SIGN_FAILED").Errorf("signing secret cannot be empty")
	}
	now := s.clock.Now()
	claims.Issuer = s.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = ulid.Make().String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("sub", claims.Subject).Wrap(err)
	}
	return signed, nil
}

// Verify parses and validates a token.
func (s *JWTSigner) Verify(token string, secret []byte) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").Wrap(err)
	}
	if !parsed.Valid {
		return nil, oops.Code("TOKEN_INVALID").Errorf("token is not valid")
	}
	return claims, nil
}

// HashToken computes the SHA256 fingerprint under which tokens are stored.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenConfig configures a TokenIssuer.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Validate checks secret presence, length and distinctness.
func (c TokenConfig) Validate() error {
	if len(c.AccessSecret) < MinSecretLength {
		return oops.Code("TOKEN_CONFIG_INVALID").
			With("min", MinSecretLength).
			Errorf("access secret must be at least %d bytes", MinSecretLength)
	}
	if len(c.RefreshSecret) < MinSecretLength {
		return oops.Code("TOKEN_CONFIG_INVALID").
			With("min", MinSecretLength).
			Errorf("refresh secret must be at least %d bytes", MinSecretLength)
	}
	if string(c.AccessSecret) == string(c.RefreshSecret) {
		return oops.Code("TOKEN_CONFIG_INVALID").Errorf("access and refresh secrets must differ")
	}
	return nil
}

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenIssuer mints token pairs and registers each refresh token.
type TokenIssuer struct {
	cfg     TokenConfig
	signer  TokenSigner
	refresh RefreshCredentialRepository
	clock   Clock
}

// NewTokenIssuer creates a TokenIssuer. TTLs default when unset.
func NewTokenIssuer(cfg TokenConfig, signer TokenSigner, refresh RefreshCredentialRepository, clock Clock) (*TokenIssuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if signer == nil {
		return nil, oops.Code("TOKEN_ISSUER_INVALID").Errorf("token signer is required")
	}
	if refresh == nil {
		return nil, oops.Code("TOKEN_ISSUER_INVALID").Errorf("refresh credential repository is required")
	}
	if clock == nil {
		clock = SystemClock
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	return &TokenIssuer{cfg: cfg, signer: signer, refresh: refresh, clock: clock}, nil
}

// AccessTTL returns the access token lifetime.
func (i *TokenIssuer) AccessTTL() time.Duration { return i.cfg.AccessTTL }

// Issue signs a new pair for the principal and persists the refresh credential.
// A refresh token is only usable while its stored row exists.
func (i *TokenIssuer) Issue(ctx context.Context, principal *Principal) (*TokenPair, error) {
	now := i.clock.Now()

	access, err := i.signer.Sign(i.claimsFor(principal), i.cfg.AccessSecret, i.cfg.AccessTTL)
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("operation", "sign access token").Wrap(err)
	}
	refresh, err := i.signer.Sign(i.claimsFor(principal), i.cfg.RefreshSecret, i.cfg.RefreshTTL)
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("operation", "sign refresh token").Wrap(err)
	}

	cred, err := NewRefreshCredential(principal.ID, HashToken(refresh), now, now.Add(i.cfg.RefreshTTL))
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("operation", "build refresh credential").Wrap(err)
	}
	if err := i.refresh.Create(ctx, cred); err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "persist refresh credential").
			With("principal_id", principal.ID.String()).
			Wrap(err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(i.cfg.AccessTTL),
		RefreshExpiresAt: cred.ExpiresAt,
	}, nil
}

// VerifyAccessToken checks an access token signature and expiry only.
func (i *TokenIssuer) VerifyAccessToken(token string) (*Claims, error) {
	return i.signer.Verify(token, i.cfg.AccessSecret)
}

// VerifyRefreshToken checks a refresh token signature and expiry only.
func (i *TokenIssuer) VerifyRefreshToken(token string) (*Claims, error) {
	return i.signer.Verify(token, i.cfg.RefreshSecret)
}

func (i *TokenIssuer) claimsFor(p *Principal) *Claims {
	return &Claims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: p.ID.String(),
		},
	}
}
