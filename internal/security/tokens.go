package security

import (
	"crypto"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails signature/claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSigningUnavailable is returned by IssueAccess when the provider has no private key.
	ErrSigningUnavailable = errors.New("token signing unavailable")
)

// AccessClaims holds JWT claims for the access token. Subject is the numeric user id.
type AccessClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// Principal is the caller identity carried by a valid access token.
type Principal struct {
	UserID int64
	Roles  []string
}

// TokenProvider validates (and, with a private key, issues) access JWTs signed with RS256 or ES256.
// Tokens are issued by the external auth service; this process normally only holds the public key.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	nowF       func() time.Time
}

// NewTokenProvider returns a TokenProvider. privateKey may be nil for a validate-only provider.
// issuer and audience are validated when non-empty.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	if publicKey == nil && privateKey != nil {
		publicKey = privateKey.Public()
	}
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// IssueAccess issues an access JWT for userID with the given roles. Used by dev tooling (cmd/seed) and tests.
func (p *TokenProvider) IssueAccess(userID int64, roles []string) (token string, expiresAt time.Time, err error) {
	if p.privateKey == nil {
		return "", time.Time{}, ErrSigningUnavailable
	}
	if userID <= 0 {
		return "", time.Time{}, ErrInvalidToken
	}
	method := signingMethod(p.privateKey.Public())
	if method == nil {
		return "", time.Time{}, ErrInvalidKey
	}
	now := p.nowF()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Roles: roles,
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}
	token, err = jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
	return token, expiresAt, err
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud) and returns its principal.
// The subject must be a positive integer user id. A nil provider rejects every token.
func (p *TokenProvider) ValidateAccess(tokenString string) (*Principal, error) {
	if p == nil {
		return nil, ErrInvalidToken
	}
	method := signingMethod(p.publicKey)
	if method == nil || strings.TrimSpace(tokenString) == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.nowF),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrInvalidToken
	}
	return &Principal{UserID: userID, Roles: claims.Roles}, nil
}
