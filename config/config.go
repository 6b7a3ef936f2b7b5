package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Env Environment

	// Server configuration
	ServerPort  string
	ServerHost  string
	CORSOrigins []string

	// Database configuration
	DBDriver      string
	DBPath        string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	MigrationsDir string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisURL      string

	// Auth
	JWTSecret    string
	TokenTTL     time.Duration
	CookieName   string
	CookieDomain string
	CookieSecure bool

	// Rate limits, requests per window
	RateLimitWindow   time.Duration
	RecipeCreateLimit int
	RecipeUpdateLimit int
	ContactLimit      int

	// Image storage
	StorageBackend string
	UploadDir      string
	PublicBaseURL  string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string

	// Email
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	EmailFrom    string
	AdminEmail   string

	MealDBURL string
}

// fileConfig is the optional YAML overlay for non-secret settings.
type fileConfig struct {
	Server struct {
		Host        string   `yaml:"host"`
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Database struct {
		Driver        string `yaml:"driver"`
		Path          string `yaml:"path"`
		MigrationsDir string `yaml:"migrations_dir"`
	} `yaml:"database"`
	Cookie struct {
		Name   string `yaml:"name"`
		Domain string `yaml:"domain"`
		Secure *bool  `yaml:"secure"`
	} `yaml:"cookie"`
	RateLimit struct {
		Window       time.Duration `yaml:"window"`
		RecipeCreate int           `yaml:"recipe_create"`
		RecipeUpdate int           `yaml:"recipe_update"`
		Contact      int           `yaml:"contact"`
	} `yaml:"rate_limit"`
	Storage struct {
		Backend       string `yaml:"backend"`
		UploadDir     string `yaml:"upload_dir"`
		PublicBaseURL string `yaml:"public_base_url"`
		Bucket        string `yaml:"bucket"`
		Region        string `yaml:"region"`
		Endpoint      string `yaml:"endpoint"`
	} `yaml:"storage"`
	Email struct {
		From  string `yaml:"from"`
		Admin string `yaml:"admin"`
	} `yaml:"email"`
	MealDB struct {
		URL string `yaml:"url"`
	} `yaml:"mealdb"`
}

// LoadConfig creates a new Config instance with values from environment variables or secrets
func LoadConfig() (*Config, error) {
	env := GetEnvironment()

	if env == Development || env == Test {
		// .env is optional; a missing file is fine
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := defaults(env)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	// Load configuration based on environment
	switch env {
	case CI:
		loadFromSource(cfg, os.Getenv)
	case Development, Test:
		loadFromSource(cfg, envThenSecret)
	case Production:
		loadFromSource(cfg, secretThenEnv)
	default:
		return nil, fmt.Errorf("unknown environment: %s", env)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultJWTSecret is only accepted outside production.
const DefaultJWTSecret = "dev-secret-change-me"

func defaults(env Environment) *Config {
	return &Config{
		Env:               env,
		ServerPort:        "8080",
		ServerHost:        "0.0.0.0",
		CORSOrigins:       []string{"http://localhost:5173", "http://localhost:3000"},
		DBDriver:          "postgres",
		DBPath:            "cookbook.db",
		DBHost:            "localhost",
		DBPort:            "5432",
		DBUser:            "postgres",
		DBName:            "cookbook",
		DBSSLMode:         "disable",
		MigrationsDir:     "migrations",
		RedisHost:         "localhost",
		RedisPort:         "6379",
		JWTSecret:         DefaultJWTSecret,
		TokenTTL:          24 * time.Hour,
		CookieName:        "session",
		CookieSecure:      env == Production,
		RateLimitWindow:   time.Hour,
		RecipeCreateLimit: 20,
		RecipeUpdateLimit: 30,
		ContactLimit:      5,
		StorageBackend:    StorageLocal,
		UploadDir:         "uploads",
		PublicBaseURL:     "/uploads",
		S3Region:          "us-east-1",
		SMTPPort:          587,
		EmailFrom:         "no-reply@cookbook.local",
		MealDBURL:         "https://www.themealdb.com/api/json/v1/1",
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&cfg.ServerHost, fc.Server.Host)
	setString(&cfg.ServerPort, fc.Server.Port)
	if len(fc.Server.CORSOrigins) > 0 {
		cfg.CORSOrigins = fc.Server.CORSOrigins
	}
	setString(&cfg.DBDriver, fc.Database.Driver)
	setString(&cfg.DBPath, fc.Database.Path)
	setString(&cfg.MigrationsDir, fc.Database.MigrationsDir)
	setString(&cfg.CookieName, fc.Cookie.Name)
	setString(&cfg.CookieDomain, fc.Cookie.Domain)
	if fc.Cookie.Secure != nil {
		cfg.CookieSecure = *fc.Cookie.Secure
	}
	if fc.RateLimit.Window > 0 {
		cfg.RateLimitWindow = fc.RateLimit.Window
	}
	setInt(&cfg.RecipeCreateLimit, fc.RateLimit.RecipeCreate)
	setInt(&cfg.RecipeUpdateLimit, fc.RateLimit.RecipeUpdate)
	setInt(&cfg.ContactLimit, fc.RateLimit.Contact)
	setString(&cfg.StorageBackend, fc.Storage.Backend)
	setString(&cfg.UploadDir, fc.Storage.UploadDir)
	setString(&cfg.PublicBaseURL, fc.Storage.PublicBaseURL)
	setString(&cfg.S3Bucket, fc.Storage.Bucket)
	setString(&cfg.S3Region, fc.Storage.Region)
	setString(&cfg.S3Endpoint, fc.Storage.Endpoint)
	setString(&cfg.EmailFrom, fc.Email.From)
	setString(&cfg.AdminEmail, fc.Email.Admin)
	setString(&cfg.MealDBURL, fc.MealDB.URL)
	return nil
}

// loadFromSource overrides cfg with every key the lookup function knows.
// Keys are environment variable names; secrets use the lower-cased name.
func loadFromSource(cfg *Config, lookup func(string) string) {
	setString(&cfg.ServerPort, lookup("SERVER_PORT"))
	setString(&cfg.ServerHost, lookup("SERVER_HOST"))
	if origins := lookup("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	setString(&cfg.DBDriver, lookup("DB_DRIVER"))
	setString(&cfg.DBPath, lookup("DB_PATH"))
	setString(&cfg.DBHost, lookup("DB_HOST"))
	setString(&cfg.DBPort, lookup("DB_PORT"))
	setString(&cfg.DBUser, lookup("DB_USER"))
	setString(&cfg.DBPassword, lookup("DB_PASSWORD"))
	setString(&cfg.DBName, lookup("DB_NAME"))
	setString(&cfg.DBSSLMode, lookup("DB_SSL_MODE"))
	setString(&cfg.MigrationsDir, lookup("MIGRATIONS_DIR"))

	setString(&cfg.RedisHost, lookup("REDIS_HOST"))
	setString(&cfg.RedisPort, lookup("REDIS_PORT"))
	setString(&cfg.RedisPassword, lookup("REDIS_PASSWORD"))
	setString(&cfg.RedisURL, lookup("REDIS_URL"))
	if db, err := strconv.Atoi(lookup("REDIS_DB")); err == nil {
		cfg.RedisDB = db
	}

	setString(&cfg.JWTSecret, lookup("JWT_SECRET"))
	if ttl, err := time.ParseDuration(lookup("TOKEN_TTL")); err == nil && ttl > 0 {
		cfg.TokenTTL = ttl
	}
	setString(&cfg.CookieName, lookup("COOKIE_NAME"))
	setString(&cfg.CookieDomain, lookup("COOKIE_DOMAIN"))
	if secure, err := strconv.ParseBool(lookup("COOKIE_SECURE")); err == nil {
		cfg.CookieSecure = secure
	}

	setString(&cfg.StorageBackend, lookup("STORAGE_BACKEND"))
	setString(&cfg.UploadDir, lookup("UPLOAD_DIR"))
	setString(&cfg.PublicBaseURL, lookup("PUBLIC_BASE_URL"))
	setString(&cfg.S3Bucket, lookup("S3_BUCKET_NAME"))
	setString(&cfg.S3Region, lookup("AWS_REGION"))
	setString(&cfg.S3Endpoint, lookup("S3_ENDPOINT"))

	setString(&cfg.SMTPHost, lookup("SMTP_HOST"))
	if port, err := strconv.Atoi(lookup("SMTP_PORT")); err == nil {
		cfg.SMTPPort = port
	}
	setString(&cfg.SMTPUser, lookup("SMTP_USER"))
	setString(&cfg.SMTPPassword, lookup("SMTP_PASSWORD"))
	setString(&cfg.EmailFrom, lookup("EMAIL_FROM"))
	setString(&cfg.AdminEmail, lookup("ADMIN_EMAIL"))

	setString(&cfg.MealDBURL, lookup("MEALDB_URL"))
}

// DSN returns the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

func envThenSecret(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return readSecret(strings.ToLower(key))
}

func secretThenEnv(key string) string {
	if v := readSecret(strings.ToLower(key)); v != "" {
		return v
	}
	return os.Getenv(key)
}

// readSecret reads a Docker secret from the secrets directory
func readSecret(name string) string {
	secretsDir := os.Getenv("SECRETS_DIR")
	if secretsDir == "" {
		secretsDir = "/run/secrets"
	}
	secretPath := filepath.Join(secretsDir, name)
	if data, err := os.ReadFile(secretPath); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
