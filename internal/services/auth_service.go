package services

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/internal/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid client id or api key")
	ErrAuthDisabled       = errors.New("authentication is not configured")
)

// AuthService exchanges client API keys for access tokens
type AuthService struct {
	keys       *auth.APIKeyStore
	jwtManager *auth.JWTManager
}

// NewAuthService creates a new auth service. A nil manager disables token issuance.
func NewAuthService(keys *auth.APIKeyStore, jwtManager *auth.JWTManager) *AuthService {
	return &AuthService{
		keys:       keys,
		jwtManager: jwtManager,
	}
}

// TokenRequest represents a token request
type TokenRequest struct {
	ClientID string `json:"client_id" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
}

// TokenResponse represents an issued token
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
	ClientID  string `json:"client_id"`
	Role      string `json:"role"`
}

// IssueToken authenticates a client and returns a signed token
func (s *AuthService) IssueToken(req *TokenRequest) (*TokenResponse, error) {
	if s.jwtManager == nil || s.keys == nil {
		return nil, ErrAuthDisabled
	}

	client, err := s.keys.Authenticate(req.ClientID, req.APIKey)
	if err != nil {
		log.Warn().Str("client_id", req.ClientID).Msg("Rejected token request")
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwtManager.GenerateToken(client.ID, client.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	log.Info().Str("client_id", client.ID).Str("role", client.Role).Msg("Issued access token")

	return &TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(s.jwtManager.Expiration().Seconds()),
		ClientID:  client.ID,
		Role:      client.Role,
	}, nil
}

// RefreshToken issues a fresh token for a still-valid one
func (s *AuthService) RefreshToken(currentToken string) (*TokenResponse, error) {
	if s.jwtManager == nil {
		return nil, ErrAuthDisabled
	}

	claims, err := s.jwtManager.ValidateToken(currentToken)
	if err != nil {
		return nil, err
	}

	token, err := s.jwtManager.GenerateToken(claims.ClientID, claims.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(s.jwtManager.Expiration().Seconds()),
		ClientID:  claims.ClientID,
		Role:      claims.Role,
	}, nil
}
