package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidToken is returned when an operator token fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidOperator is returned when an operator name doesn't meet constraints.
	ErrInvalidOperator = errors.New("invalid operator name")
	// ErrDisabled is returned when no operator secret is configured.
	ErrDisabled = errors.New("operator api disabled")
)

// Service issues and validates operator tokens.
type Service struct {
	jwtConfig *JWTConfig
}

// NewService creates a new operator token service.
func NewService(jwtConfig *JWTConfig) *Service {
	return &Service{jwtConfig: jwtConfig}
}

// Enabled reports whether tokens can be issued.
func (s *Service) Enabled() bool {
	return s != nil && s.jwtConfig != nil && len(s.jwtConfig.Secret) > 0
}

// IssueToken signs a token for operator.
func (s *Service) IssueToken(operator string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	operator = strings.TrimSpace(operator)
	if len(operator) < 2 || len(operator) > 64 {
		return "", ErrInvalidOperator
	}

	token, err := GenerateToken(s.jwtConfig, operator)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	return ValidateToken(s.jwtConfig, tokenString)
}
