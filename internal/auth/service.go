package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/campuschat/internal/core"
)

// ErrInvalidToken is returned when a token cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Service verifies identity tokens. Issuing tokens for real users belongs to
// the identity provider; IssueToken exists for tooling and tests.
type Service struct {
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(jwtConfig *JWTConfig) *Service {
	return &Service{jwtConfig: jwtConfig}
}

// Authenticate resolves a token into the identity of its user.
func (s *Service) Authenticate(_ context.Context, token string) (core.Identity, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return core.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return core.Identity{UserID: claims.Subject, Name: name}, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// IssueToken signs a token for userID.
func (s *Service) IssueToken(userID, name string) (string, error) {
	token, err := GenerateToken(s.jwtConfig, userID, name)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}
