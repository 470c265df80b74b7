// Package config loads toolbooth configuration from environment
// variables and an optional YAML credentials file.
package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/toolbooth/toolbooth/internal/auth"
)

// Config holds all environment-based configuration for toolbooth.
type Config struct {
	// Address the HTTP server binds to.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8090"`

	// Public base URL of this server, advertised in OAuth discovery
	// metadata (token and revocation endpoint URLs are derived from it).
	ServerURL string `env:"SERVER_URL"`

	// Static API keys accepted in the x-api-key header.
	// Format: "key1,key2"
	APIKeys string `env:"API_KEYS"`

	// OAuth2 client credentials with plain-text secrets.
	// Format: "client1:secret1,client2:secret2"
	ClientCredentials string `env:"CLIENT_CREDENTIALS"`

	// Optional YAML file with additional client credentials. Supports
	// bcrypt-hashed secrets, which the env var format does not.
	CredentialsFile string `env:"CREDENTIALS_FILE"`

	// Secret used to sign access tokens (HS256). Required.
	SigningSecret string `env:"SIGNING_SECRET"`

	// Lifetime of issued access tokens.
	TokenLifetime time.Duration `env:"TOKEN_LIFETIME" envDefault:"1h"`

	// Path to the bbolt audit database. Empty disables audit persistence.
	AuditDBPath string `env:"AUDIT_DB_PATH"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

const (
	// clientSecretMinLen is the minimum length for plain-text client
	// secrets. Shorter secrets do not provide enough entropy for
	// hash-based authentication. 16 characters is a conservative floor
	// that allows a range of secret formats (hex, base64, passphrase).
	clientSecretMinLen = 16

	// apiKeyMinLen is the minimum length for static API keys.
	apiKeyMinLen = 16

	// signingSecretMinLen is the minimum length for the token signing
	// secret. HS256 keys shorter than the hash output weaken the MAC.
	signingSecretMinLen = 32
)

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("SERVER_URL is required")
	}

	if c.SigningSecret == "" {
		return fmt.Errorf("SIGNING_SECRET is required")
	}

	if len(c.SigningSecret) < signingSecretMinLen {
		return fmt.Errorf("SIGNING_SECRET too short (minimum %d characters)", signingSecretMinLen)
	}

	if c.APIKeys == "" && c.ClientCredentials == "" && c.CredentialsFile == "" {
		return fmt.Errorf("at least one auth method required: API_KEYS, CLIENT_CREDENTIALS, or CREDENTIALS_FILE")
	}

	if c.TokenLifetime <= 0 {
		return fmt.Errorf("TOKEN_LIFETIME must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ParseAPIKeys parses the API_KEYS string into a list of keys.
// Format: "key1,key2"
func (c *Config) ParseAPIKeys() ([]string, error) {
	if c.APIKeys == "" {
		return nil, nil
	}

	seen := make(map[string]struct{})

	var keys []string

	for _, key := range strings.Split(c.APIKeys, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		if len(key) < apiKeyMinLen {
			return nil, fmt.Errorf("API key too short in entry %d (minimum %d characters)", len(keys)+1, apiKeyMinLen)
		}

		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate key in API_KEYS")
		}

		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	return keys, nil
}

// credentialsFile is the YAML schema for CREDENTIALS_FILE.
type credentialsFile struct {
	Clients []struct {
		ClientID         string `yaml:"client_id"`
		ClientSecret     string `yaml:"client_secret"`
		ClientSecretHash string `yaml:"client_secret_hash"`
	} `yaml:"clients"`
}

// ParseClientCredentials parses the CLIENT_CREDENTIALS string and merges
// in entries from CREDENTIALS_FILE when set. Env entries use the format
// "client1:secret1,client2:secret2". File entries may carry either a
// plain secret or a bcrypt hash produced by the hash-secret subcommand.
func (c *Config) ParseClientCredentials() ([]auth.ClientCredential, error) {
	seen := make(map[string]struct{})

	var creds []auth.ClientCredential

	add := func(cred auth.ClientCredential) error {
		if _, dup := seen[cred.ClientID]; dup {
			return fmt.Errorf("duplicate client_id %q", cred.ClientID)
		}

		seen[cred.ClientID] = struct{}{}
		creds = append(creds, cred)

		return nil
	}

	for _, pair := range strings.Split(c.ClientCredentials, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid client credential entry (missing ':')")
		}

		clientID := pair[:idx]

		secret := pair[idx+1:]
		if clientID == "" || secret == "" {
			return nil, fmt.Errorf("empty client_id or secret in entry %d", len(creds)+1)
		}

		if len(secret) < clientSecretMinLen {
			return nil, fmt.Errorf("client secret too short in entry %d (minimum %d characters)", len(creds)+1, clientSecretMinLen)
		}

		if err := add(auth.ClientCredential{ClientID: clientID, Secret: secret}); err != nil {
			return nil, fmt.Errorf("%w in CLIENT_CREDENTIALS", err)
		}
	}

	if c.CredentialsFile == "" {
		return creds, nil
	}

	data, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var file credentialsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}

	for i, entry := range file.Clients {
		if entry.ClientID == "" {
			return nil, fmt.Errorf("empty client_id in credentials file entry %d", i+1)
		}

		if entry.ClientSecret == "" && entry.ClientSecretHash == "" {
			return nil, fmt.Errorf("entry %d in credentials file needs client_secret or client_secret_hash", i+1)
		}

		if entry.ClientSecret != "" && entry.ClientSecretHash != "" {
			return nil, fmt.Errorf("entry %d in credentials file has both client_secret and client_secret_hash", i+1)
		}

		if entry.ClientSecret != "" && len(entry.ClientSecret) < clientSecretMinLen {
			return nil, fmt.Errorf("client secret too short in credentials file entry %d (minimum %d characters)", i+1, clientSecretMinLen)
		}

		cred := auth.ClientCredential{
			ClientID:   entry.ClientID,
			Secret:     entry.ClientSecret,
			SecretHash: entry.ClientSecretHash,
		}
		if err := add(cred); err != nil {
			return nil, fmt.Errorf("%w in credentials file", err)
		}
	}

	return creds, nil
}
