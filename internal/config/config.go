// Package config loads agentcore's process configuration from the
// environment. There is no file/YAML layer: the external interface this
// core exposes is fully described by environment variables, so loading
// is a single pass over os.Getenv with every missing required variable
// collected into one diagnostic error.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/forgecode/agentcore/internal/apperrors"
)

// Config is the process-wide configuration for agentcore.
type Config struct {
	Port                     int
	LLMServerURL             string
	JWTSecretKey             string
	EncryptionKey            string
	BetaAccessKey            string
	DatabaseURL              string
	AccessTokenExpireMinutes int
	Algorithm                string
	WorkspacesRoot           string
	LogFormat                string
}

const (
	defaultPort                     = 8080
	defaultAccessTokenExpireMinutes = 30
	defaultAlgorithm                = "HS256"
	defaultWorkspacesRoot           = "./workspaces"
)

// Load reads and validates configuration from the environment. It never
// calls os.Exit; callers decide how to react to the returned error.
func Load() (*Config, error) {
	var missing []string
	require := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		LLMServerURL:   require("LLM_SERVER_URL"),
		JWTSecretKey:   require("JWT_SECRET_KEY"),
		EncryptionKey:  require("ENCRYPTION_KEY"),
		BetaAccessKey:  require("BETA_ACCESS_KEY"),
		DatabaseURL:    require("DATABASE_URL"),
		Algorithm:      defaultAlgorithm,
		WorkspacesRoot: defaultWorkspacesRoot,
		LogFormat:      "json",
	}

	if len(missing) > 0 {
		return nil, apperrors.Config(
			fmt.Sprintf("missing required environment variables: %s", strings.Join(missing, ", ")),
			nil,
		)
	}

	cfg.Port = defaultPort
	if raw := strings.TrimSpace(os.Getenv("PORT")); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return nil, apperrors.Config("PORT must be an integer", err)
		}
		cfg.Port = p
	}

	cfg.AccessTokenExpireMinutes = defaultAccessTokenExpireMinutes
	if raw := strings.TrimSpace(os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES")); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil {
			return nil, apperrors.Config("ACCESS_TOKEN_EXPIRE_MINUTES must be an integer", err)
		}
		cfg.AccessTokenExpireMinutes = m
	}

	if raw := strings.TrimSpace(os.Getenv("ALGORITHM")); raw != "" {
		cfg.Algorithm = raw
	}
	if raw := strings.TrimSpace(os.Getenv("WORKSPACES_ROOT")); raw != "" {
		cfg.WorkspacesRoot = raw
	}
	if raw := strings.TrimSpace(os.Getenv("NEXUS_LOG_FORMAT")); raw != "" {
		cfg.LogFormat = raw
	}

	return cfg, nil
}
