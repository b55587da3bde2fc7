package sessiontoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 8 * time.Hour

var (
	ErrEmptyToken     = errors.New("sessiontoken: empty token")
	ErrEmptySecret    = errors.New("sessiontoken: empty secret")
	ErrInvalidToken   = errors.New("sessiontoken: invalid token")
	ErrMissingSession = errors.New("sessiontoken: missing session id")
	ErrTokenExpired   = errors.New("sessiontoken: token expired")
)

// Claims binds a handle to one form session. It carries no user identity.
type Claims struct {
	SessionID string `json:"sid"`
	SiteID    string `json:"site_id"`
	jwt.RegisteredClaims
}

// Issuer signs session handles.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer constructs an issuer. An empty secret yields a disabled issuer.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Issuer{secret: secret, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Enabled reports whether handles are issued and checked.
func (i *Issuer) Enabled() bool {
	return i != nil && len(i.secret) > 0
}

// Issue signs a handle for a session. It returns an empty token when disabled.
func (i *Issuer) Issue(sessionID, siteID string) (string, error) {
	if !i.Enabled() {
		return "", nil
	}
	if sessionID == "" {
		return "", ErrMissingSession
	}
	now := i.now()
	claims := Claims{
		SessionID: sessionID,
		SiteID:    siteID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse validates a handle signed by this issuer.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	if i == nil {
		return nil, ErrEmptySecret
	}
	return ParseToken(tokenString, i.secret)
}

// ParseToken validates a handle and returns its claims.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("sessiontoken: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" {
		return nil, ErrMissingSession
	}
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}
