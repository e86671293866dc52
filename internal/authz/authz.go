// Package authz issues and verifies the bearer tokens the Agent Facade
// and the Broadcast Hub's WebSocket endpoint require, and defines the
// seam the core uses to resolve a user's role assignments and decrypted
// provider keys without owning their storage.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/forgecode/agentcore/internal/apperrors"
	"github.com/forgecode/agentcore/internal/llmstreamer"
	"github.com/forgecode/agentcore/pkg/models"
)

// ErrInvalidToken is returned by Verify for any malformed, expired, or
// mis-signed token.
var ErrInvalidToken = apperrors.Auth("invalid or expired token", nil)

// Claims is the JWT payload this service issues: subject is the user ID,
// encoded as a decimal string since jwt.RegisteredClaims.Subject is a
// string.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService signs and verifies bearer tokens for one configured
// secret/expiry, mirroring the teacher's JWTService.
type TokenService struct {
	secret []byte
	expiry time.Duration
}

// NewTokenService builds a TokenService. Issue always signs with HS256
// and the configured ALGORITHM variable is not consulted; Verify accepts
// any HMAC signing method, matching the teacher's HMAC-only JWT usage.
func NewTokenService(secret string, expireMinutes int) *TokenService {
	return &TokenService{secret: []byte(secret), expiry: time.Duration(expireMinutes) * time.Minute}
}

// Issue signs a token for userID.
func (s *TokenService) Issue(userID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperrors.Auth("sign token", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token, returning the embedded
// user ID.
func (s *TokenService) Verify(token string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

// RoleStore is the seam internal/storage implements: CRUD over a user's
// role assignments and provider keys. authz never persists these itself.
type RoleStore interface {
	RoleAssignment(ctx context.Context, userID int64, role models.Role) (models.RoleAssignment, error)
	ProviderKey(ctx context.Context, userID int64, providerName string) (models.ProviderKey, error)
}

// KeyDecrypter decrypts a stored provider-key blob back into the raw API
// key, keeping the symmetric-encryption scheme (ENCRYPTION_KEY) out of
// authz itself.
type KeyDecrypter interface {
	Decrypt(blob string) (string, error)
}

// Resolver implements llmstreamer.RoleResolver against a RoleStore and a
// KeyDecrypter: the bridge between the persisted role/provider-key
// tables and the stateless LLM Streamer.
type Resolver struct {
	store     RoleStore
	decrypter KeyDecrypter
}

// NewResolver builds a llmstreamer.RoleResolver backed by store and
// decrypter.
func NewResolver(store RoleStore, decrypter KeyDecrypter) *Resolver {
	return &Resolver{store: store, decrypter: decrypter}
}

// Resolve implements llmstreamer.RoleResolver.
func (r *Resolver) Resolve(ctx context.Context, userID int64, role models.Role) (llmstreamer.RoleConfig, error) {
	assignment, err := r.store.RoleAssignment(ctx, userID, role)
	if err != nil {
		return llmstreamer.RoleConfig{}, apperrors.Config("resolve role assignment for role "+string(role), err)
	}
	provider, model, err := splitModelID(assignment.ModelID)
	if err != nil {
		return llmstreamer.RoleConfig{}, apperrors.Config("invalid role assignment for role "+string(role), err)
	}

	key, err := r.store.ProviderKey(ctx, userID, provider)
	if err != nil {
		return llmstreamer.RoleConfig{}, apperrors.Config("resolve provider key for "+provider, err)
	}
	apiKey, err := r.decrypter.Decrypt(key.EncryptedBlob)
	if err != nil {
		return llmstreamer.RoleConfig{}, apperrors.Auth("decrypt provider key", err)
	}

	return llmstreamer.RoleConfig{
		Provider:    provider,
		Model:       model,
		Temperature: assignment.Temperature,
		APIKey:      apiKey,
	}, nil
}

func splitModelID(modelID string) (provider, model string, err error) {
	for i := 0; i < len(modelID); i++ {
		if modelID[i] == '/' {
			return modelID[:i], modelID[i+1:], nil
		}
	}
	return "", "", errors.New("role assignment model_id must be \"provider/model\"")
}
