package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrTokenMalformed        = errors.New("JWT token is malformed")
	ErrTokenSignatureInvalid = errors.New("JWT token signature is invalid")
	ErrTokenExpired          = errors.New("JWT token is expired")
	ErrTokenSubjectMismatch  = errors.New("JWT token subject does not match")
)

const (
	defaultJWTDuration = 10 * time.Hour
	ephemeralKeySize   = 32
)

// TokenError reports why a token was rejected. Kind is one of the
// ErrToken* sentinels, so errors.Is works against the kind directly.
type TokenError struct {
	Kind error
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Kind
}

func tokenError(kind, cause error) error {
	return &TokenError{Kind: kind, Err: cause}
}

// TokenConfig controls the signing key and token lifetime. An empty Secret
// makes the manager generate a random key, so issued tokens stop validating
// once the process restarts.
type TokenConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

type TokenIssuer interface {
	Issue(subject string) (string, error)
}

type TokenValidator interface {
	Validate(tokenString, expectedSubject string) error
	Subject(tokenString string) (string, error)
}

type JWTManager struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

func NewJWTManager(cfg TokenConfig) (*JWTManager, error) {
	key := []byte(cfg.Secret)
	if len(key) == 0 {
		key = make([]byte, ephemeralKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("could not generate signing key: %w", err)
		}
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultJWTDuration
	}

	return &JWTManager{
		key:    key,
		ttl:    ttl,
		issuer: cfg.Issuer,
		now:    time.Now,
		parser: &jwt.Parser{
			ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
			SkipClaimsValidation: true,
		},
	}, nil
}

func (j *JWTManager) TTL() time.Duration {
	return j.ttl
}

func (j *JWTManager) Issue(subject string) (string, error) {
	now := j.now()
	claims := &jwt.StandardClaims{
		Subject:   subject,
		Issuer:    j.issuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(j.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.key)
}

func (j *JWTManager) Validate(tokenString, expectedSubject string) error {
	claims, err := j.parse(tokenString)
	if err != nil {
		return err
	}
	if claims.Subject != expectedSubject {
		return tokenError(ErrTokenSubjectMismatch, nil)
	}
	return nil
}

func (j *JWTManager) Subject(tokenString string) (string, error) {
	claims, err := j.parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// parse checks structure, then signature, then expiry. A token failing the
// signature check is reported as such even when it is also expired.
func (j *JWTManager) parse(tokenString string) (*jwt.StandardClaims, error) {
	claims := &jwt.StandardClaims{}
	_, err := j.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return j.key, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	if claims.ExpiresAt == 0 {
		return nil, tokenError(ErrTokenMalformed, errors.New("missing exp claim"))
	}
	if !claims.VerifyExpiresAt(j.now().Unix(), true) {
		return nil, tokenError(ErrTokenExpired, nil)
	}
	return claims, nil
}

func classifyParseError(err error) error {
	var validationErr *jwt.ValidationError
	if errors.As(err, &validationErr) {
		switch {
		case validationErr.Errors&jwt.ValidationErrorMalformed != 0:
			return tokenError(ErrTokenMalformed, err)
		case validationErr.Errors&(jwt.ValidationErrorUnverifiable|jwt.ValidationErrorSignatureInvalid) != 0:
			return tokenError(ErrTokenSignatureInvalid, err)
		}
	}
	return tokenError(ErrTokenMalformed, err)
}
