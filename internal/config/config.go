// Package config handles loading and validation of service configuration.
// Supports both development (env vars, .env, CONFIG_FILE) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/mod/semver"
)

// MinAPIVersion is the oldest Storefront API version whose cart and nodes
// shapes the storefront relies on.
const MinAPIVersion = "2024-04"

// Session backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all service configuration.
// Environment determines whether Shopify credentials load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string `envconfig:"PORT" default:"8080" json:"port"`
	Environment string `envconfig:"ENVIRONMENT" default:"development" json:"environment"` // "development" or "production"
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" json:"log_level"`             // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string `envconfig:"GCP_PROJECT" json:"gcp_project"`
	StoreID    string `envconfig:"STORE_ID" json:"store_id"`

	Shopify ShopifyConfig `json:"shopify"`
	Session SessionConfig `json:"session"`
}

// ShopifyConfig addresses the Storefront API and the tester box products.
type ShopifyConfig struct {
	StoreDomain     string `envconfig:"SHOPIFY_STORE_DOMAIN" json:"store_domain"`
	StorefrontToken string `envconfig:"SHOPIFY_STOREFRONT_TOKEN" json:"storefront_token"`
	APIVersion      string `envconfig:"SHOPIFY_API_VERSION" default:"2024-04" json:"api_version"`

	CollectionHandle    string `envconfig:"TESTER_COLLECTION_HANDLE" default:"tester-perfumes" json:"collection_handle"`
	BundleProductHandle string `envconfig:"TESTER_BOX_PRODUCT_HANDLE" default:"perfume-tester-box" json:"bundle_product_handle"`

	// CatalogRevalidate is how long catalog reads are served from cache.
	CatalogRevalidate Duration `envconfig:"CATALOG_REVALIDATE" default:"60s" json:"catalog_revalidate"`
	ChromeTLS         bool     `envconfig:"CHROME_TLS" default:"false" json:"chrome_tls"`
}

// SessionConfig selects where shopper state lives.
type SessionConfig struct {
	Backend  string   `envconfig:"SESSION_BACKEND" default:"memory" json:"backend"` // "memory" or "redis"
	RedisURL string   `envconfig:"REDIS_URL" json:"redis_url"`
	TTL      Duration `envconfig:"SESSION_TTL" default:"720h" json:"ttl"`   // cart id lifetime in redis, 0 for none
	Idle     Duration `envconfig:"SESSION_IDLE" default:"30m" json:"idle"` // in-memory eviction
}

// Duration is a time.Duration written as "60s" in both the environment and
// JSON config files.
type Duration time.Duration

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.Decode(s)
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("duration must be a string like \"60s\" or a number of seconds")
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads configuration from the environment, CONFIG_FILE, and Secret Manager.
// Priority: defaults → .env / ENV vars → CONFIG_FILE (if set) → Secret Manager (production).
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// .env never overrides variables already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, err
		}
	}

	if cfg.IsProduction() {
		if cfg.GCPProject == "" || cfg.StoreID == "" {
			return nil, fmt.Errorf("GCP_PROJECT and STORE_ID required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading storefront credentials: %w", err)
		}
	}

	cfg.Shopify.StoreDomain = normalizeDomain(cfg.Shopify.StoreDomain)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether secrets come from Secret Manager.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// loadFromFile overlays a JSON file onto c. Keys absent from the file keep
// their environment or default values.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// storefrontSecret is the JSON payload stored in Secret Manager.
type storefrontSecret struct {
	StoreDomain     string `json:"store_domain"`
	StorefrontToken string `json:"storefront_token"`
}

// loadFromSecretManager fetches storefront credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{store_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applySecret(result.Payload.Data)
}

func (c *Config) applySecret(data []byte) error {
	var secret storefrontSecret
	if err := json.Unmarshal(data, &secret); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	if secret.StoreDomain != "" {
		c.Shopify.StoreDomain = secret.StoreDomain
	}
	if secret.StorefrontToken != "" {
		c.Shopify.StorefrontToken = secret.StorefrontToken
	}
	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}

	if c.Shopify.StoreDomain == "" {
		return fmt.Errorf("store_domain is required")
	}
	if c.Shopify.StorefrontToken == "" {
		return fmt.Errorf("storefront_token is required")
	}
	if err := checkAPIVersion(c.Shopify.APIVersion); err != nil {
		return err
	}
	if c.Shopify.CollectionHandle == "" || c.Shopify.BundleProductHandle == "" {
		return fmt.Errorf("collection_handle and bundle_product_handle are required")
	}

	switch c.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Session.RedisURL == "" {
			return fmt.Errorf("redis_url is required for the redis session backend")
		}
		if c.Session.TTL < 0 {
			return fmt.Errorf("session ttl must not be negative")
		}
	default:
		return fmt.Errorf("unknown session backend %q (memory or redis)", c.Session.Backend)
	}
	if c.Session.Idle <= 0 {
		return fmt.Errorf("session idle must be positive")
	}
	return nil
}

var apiVersionPattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// checkAPIVersion accepts "unstable" or a YYYY-MM release at or after
// MinAPIVersion.
func checkAPIVersion(v string) error {
	if v == "unstable" {
		return nil
	}
	sv, ok := toSemver(v)
	if !ok {
		return fmt.Errorf("invalid api_version %q (want YYYY-MM)", v)
	}
	minimum, _ := toSemver(MinAPIVersion)
	if semver.Compare(sv, minimum) < 0 {
		return fmt.Errorf("api_version %s is older than %s", v, MinAPIVersion)
	}
	return nil
}

// toSemver maps "2024-04" to "v2024.4.0".
func toSemver(v string) (string, bool) {
	m := apiVersionPattern.FindStringSubmatch(v)
	if m == nil {
		return "", false
	}
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return "", false
	}
	sv := fmt.Sprintf("v%s.%d.0", strings.TrimLeft(m[1], "0"), month)
	return sv, semver.IsValid(sv)
}

// normalizeDomain strips a scheme and trailing path so both
// "https://acme.myshopify.com/" and "acme.myshopify.com" work.
func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.Split(domain, "/")[0]
}
