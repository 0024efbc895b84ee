package auth

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/sebuszqo/ClaritySpend/internal/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInternalError      = errors.New("internal Server Error")
)

type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (user.Identity, error)
}

type Service interface {
	Login(ctx context.Context, username, password string) (string, error)
}

type service struct {
	credentials CredentialVerifier
	tokens      TokenIssuer
	log         zerolog.Logger
}

func NewAuthService(credentials CredentialVerifier, tokens TokenIssuer, log zerolog.Logger) Service {
	return &service{
		credentials: credentials,
		tokens:      tokens,
		log:         log,
	}
}

// Login verifies the credentials and issues a token whose subject is the
// username.
func (s *service) Login(ctx context.Context, username, password string) (string, error) {
	identity, err := s.credentials.Verify(ctx, username, password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			return "", ErrInvalidCredentials
		}
		s.log.Error().Err(err).Msg("error when verifying credentials")
		return "", ErrInternalError
	}

	token, err := s.tokens.Issue(identity.Username)
	if err != nil {
		s.log.Error().Err(err).Msg("error during JWT generation")
		return "", ErrInternalError
	}

	s.log.Info().Int64("user_id", identity.UserID).Msg("user logged in")
	return token, nil
}
