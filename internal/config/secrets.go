package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
)

// SecretStrength represents the strength level of a secret.
type SecretStrength int

const (
	SecretStrengthWeak SecretStrength = iota
	SecretStrengthMedium
	SecretStrengthStrong
)

var commonPlaceholders = []string{
	"changeme", "please_change_me", "your_api_key", "your_secret",
	"test", "password", "admin", "secret", "example", "sample", "demo",
}

// SecretValidationResult contains the result of secret validation.
type SecretValidationResult struct {
	IsValid  bool
	Strength SecretStrength
	Errors   []string
}

// ValidateSecret validates a secret for obvious placeholder/weak values.
// requireStrong is used for production credential checks.
func ValidateSecret(secret, name string, minLength int, requireStrong bool) SecretValidationResult {
	result := SecretValidationResult{IsValid: true, Strength: SecretStrengthStrong}

	if secret == "" {
		result.IsValid = false
		result.Strength = SecretStrengthWeak
		result.Errors = append(result.Errors, fmt.Sprintf("%s cannot be empty", name))
		return result
	}

	lower := strings.ToLower(secret)
	for _, placeholder := range commonPlaceholders {
		if strings.Contains(lower, placeholder) {
			result.IsValid = false
			result.Strength = SecretStrengthWeak
			result.Errors = append(result.Errors, fmt.Sprintf("%s appears to be a placeholder value", name))
			return result
		}
	}

	if len(secret) < minLength {
		result.IsValid = false
		result.Strength = SecretStrengthWeak
		result.Errors = append(result.Errors, fmt.Sprintf("%s must be at least %d characters (got %d)", name, minLength, len(secret)))
		return result
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	typesCount := boolCount(hasUpper, hasLower, hasNumber, hasSpecial)

	switch {
	case len(secret) >= 16 && typesCount >= 3:
		result.Strength = SecretStrengthStrong
	case len(secret) >= 12 && typesCount >= 2:
		result.Strength = SecretStrengthMedium
	default:
		result.Strength = SecretStrengthWeak
	}

	if requireStrong && result.Strength == SecretStrengthWeak {
		result.IsValid = false
		result.Errors = append(result.Errors, fmt.Sprintf("%s is too weak for production use", name))
	}

	return result
}

func boolCount(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

// VaultSecretLoader retrieves a string secret from Vault by path+key. It is
// satisfied by internal/vault.Client; declared here to avoid an import cycle.
type VaultSecretLoader interface {
	GetSecretString(ctx context.Context, path, key string) (string, error)
}

// LoadVenueCredentials fills in missing venue API key/secret pairs from
// Vault (if configured) and falls back to environment variables. Credentials
// already present in the loaded file/env config are never overwritten.
func LoadVenueCredentials(ctx context.Context, cfg *Config, vault VaultSecretLoader) {
	for name, venue := range cfg.Venues {
		if venue.APIKey == "" || venue.SecretKey == "" {
			if vault != nil {
				path := fmt.Sprintf("arbengine/data/venues/%s", name)
				if v, err := vault.GetSecretString(ctx, path, "api_key"); err == nil && venue.APIKey == "" {
					venue.APIKey = v
				}
				if v, err := vault.GetSecretString(ctx, path, "secret_key"); err == nil && venue.SecretKey == "" {
					venue.SecretKey = v
				}
			}

			envPrefix := strings.ToUpper(name)
			if venue.APIKey == "" {
				venue.APIKey = os.Getenv(envPrefix + "_API_KEY")
			}
			if venue.SecretKey == "" {
				venue.SecretKey = os.Getenv(envPrefix + "_SECRET_KEY")
			}
		}

		cfg.Venues[name] = venue
	}

	log.Debug().Msg("venue credentials resolved (file/env/vault)")
}
