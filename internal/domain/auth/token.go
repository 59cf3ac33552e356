package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the "iss" claim of admin tokens.
const Issuer = "eka-gifts"

// DefaultTokenTTL is how long an admin token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Claims are the JWT claims of an admin session.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Principal identifies the admin behind a verified token.
type Principal struct {
	AdminID string
	Email   string
}

// Tokens issues and verifies HS256 admin tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer. A non-positive ttl means DefaultTokenTTL.
func NewTokens(secret []byte, ttl time.Duration) (*Tokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for the admin and returns it with its expiry.
func (t *Tokens) Issue(a *Admin) (string, time.Time, error) {
	now := t.now().UTC().Truncate(time.Second)
	exp := now.Add(t.ttl)
	claims := Claims{
		Email: a.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, exp, nil
}

// Verify parses the token and returns its principal. Any failure, including
// expiry or a signing method other than HS256, yields ErrInvalidToken.
func (t *Tokens) Verify(raw string) (*Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(ErrInvalidToken, "missing subject")
	}
	return &Principal{AdminID: claims.Subject, Email: claims.Email}, nil
}
