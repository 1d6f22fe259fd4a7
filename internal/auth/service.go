package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tkarren/castbucket/internal/common"
	"github.com/tkarren/castbucket/pkg/config"
	"github.com/tkarren/castbucket/pkg/types"
	"github.com/tkarren/castbucket/pkg/utils"
)

// ErrInvalidToken is returned when a capability token is missing from the
// registry, expired, or fails signature verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Service issues and validates capability tokens. A token is a signed JWT
// carrying the identity label plus a registry entry in Redis whose TTL slides
// forward on every successful validation. The JWT expiry is a hard cap; the
// registry entry is what actually keeps the capability alive.
type Service struct {
	cache  *common.Cache
	config *config.AuthConfig
}

// NewService creates a new capability token service
func NewService(cache *common.Cache, config *config.AuthConfig) *Service {
	return &Service{
		cache:  cache,
		config: config,
	}
}

func registryKey(token string) string {
	return "cap:" + utils.HashToken(token)
}

// Handshake mints a capability token bound to a fresh identity label and
// registers it with the sliding idle window.
func (s *Service) Handshake(ctx context.Context, displayName string) (*types.HandshakeResponse, error) {
	label := utils.SanitizeIdentity(displayName)
	if label == "" {
		label = "viewer"
	}
	identity := fmt.Sprintf("%s-%s", label, uuid.New().String()[:8])

	token, err := utils.GenerateToken(identity, s.config.JWTSecret, s.config.TokenMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.cache.SetString(ctx, registryKey(token), identity, s.config.TokenIdleTTL); err != nil {
		return nil, fmt.Errorf("failed to register token: %w", err)
	}

	log.Info().Str("identity", identity).Msg("issued capability token")

	return &types.HandshakeResponse{
		Token:     token,
		Identity:  identity,
		ExpiresAt: time.Now().Add(s.config.TokenIdleTTL),
	}, nil
}

// Validate checks a capability token and returns the identity label it is
// bound to. A successful check slides the token's idle expiration forward.
func (s *Service) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	claimed, err := utils.ParseToken(token, s.config.JWTSecret)
	if err != nil {
		log.Debug().Err(err).Msg("token failed signature validation")
		return "", ErrInvalidToken
	}

	identity, err := s.cache.GetString(ctx, registryKey(token))
	if err != nil {
		if errors.Is(err, common.ErrKeyNotFound) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("failed to look up token: %w", err)
	}

	if identity != claimed {
		log.Warn().Str("identity", claimed).Msg("token identity does not match registry binding")
		return "", ErrInvalidToken
	}

	// Sliding expiration: any use of the token keeps it alive.
	if err := s.cache.Expire(ctx, registryKey(token), s.config.TokenIdleTTL); err != nil {
		log.Warn().Err(err).Msg("failed to refresh token expiry")
	}

	return identity, nil
}

// Revoke removes a token's registry binding, invalidating it immediately
func (s *Service) Revoke(ctx context.Context, token string) error {
	return s.cache.Delete(ctx, registryKey(token))
}
