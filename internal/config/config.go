package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all environment-driven settings. Operational policy
// (enforcement flags, thresholds) lives in the settings store instead.
type Config struct {
	// Database
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"dotmac"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"dotmac"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	// JWT
	JWTSecret      string `envconfig:"JWT_SECRET"`
	JWTExpireHours int    `envconfig:"JWT_EXPIRE_HOURS" default:"168"`

	// API
	APIPort int  `envconfig:"API_PORT" default:"8080"`
	Debug   bool `envconfig:"DEBUG" default:"false"`

	// Secret encryption key for NAS shared secrets (64 hex chars).
	SecretKey string `envconfig:"SECRET_KEY"`

	// NAS config backup
	BackupEnabled  bool   `envconfig:"BACKUP_ENABLED" default:"false"`
	BackupFTPHost  string `envconfig:"BACKUP_FTP_HOST"`
	BackupFTPUser  string `envconfig:"BACKUP_FTP_USER"`
	BackupFTPPass  string `envconfig:"BACKUP_FTP_PASS"`
	BackupFTPDir   string `envconfig:"BACKUP_FTP_DIR" default:"nas-backups"`
	BackupInterval int    `envconfig:"BACKUP_INTERVAL_HOURS" default:"24"`
}

// Load reads configuration from the environment, generating a random
// JWT secret when none is configured.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to parse environment: %v", err)
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = generateSecureSecret(32)
		log.Println("WARNING: JWT_SECRET not set - generated random secret. Tokens will not survive restarts.")
	}
	if cfg.DBPassword == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		cfg.DBPassword = "changeme"
	}
	if cfg.SecretKey == "" {
		log.Println("WARNING: SECRET_KEY not set - NAS shared secrets will be stored unencrypted!")
	}

	return &cfg
}

// generateSecureSecret returns length random bytes hex-encoded.
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatalf("Failed to generate random secret: %v", err)
	}
	return hex.EncodeToString(bytes)
}
