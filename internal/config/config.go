package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"app/internal/models"
)

// Default secrets keep a fresh checkout runnable. They are only acceptable
// in development; production must supply both env vars.
const (
	DefaultAccessSecret  = "default_access_token_secret"
	DefaultRefreshSecret = "default_refresh_token_secret"
)

type Config struct {
	Environment      string
	Port             string
	LogLevel         string
	AccessSecret     string
	RefreshSecret    string
	AccessTTL        time.Duration
	RefreshAccessTTL time.Duration
	RefreshTTL       time.Duration
	SQLitePath       string
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string
	KafkaAddress     string
	ESURL            string
	ESUser           string
	ESPassword       string
	CORSOrigins      string
	SeedAdminUser    string
	SeedAdminPass    string
}

// IsDevelopment reports whether the relaxed cookie attributes apply.
func (c *Config) IsDevelopment() bool {
	return c.Environment != "production"
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		Environment:      getEnv("ENVIRONMENT", "development"),
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		AccessSecret:     getEnv("ACCESS_TOKEN_SECRET", DefaultAccessSecret),
		RefreshSecret:    getEnv("REFRESH_TOKEN_SECRET", DefaultRefreshSecret),
		AccessTTL:        getDuration("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:       getDuration("REFRESH_TTL", 24*time.Hour),
		SQLitePath:       getEnv("SQLITE_DB_PATH", "example.db"),
		DBHost:           os.Getenv("DB_HOST"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           os.Getenv("DB_USER"),
		DBPassword:       os.Getenv("DB_PASSWORD"),
		DBName:           os.Getenv("DB_NAME"),
		KafkaAddress:     os.Getenv("KAFKA_ADDRESS"),
		ESURL:            os.Getenv("ES_URL"),
		ESUser:           os.Getenv("ES_USER"),
		ESPassword:       os.Getenv("ES_PASSWORD"),
		CORSOrigins:      getEnv("CORS_ORIGINS", "http://localhost,http://localhost:8080"),
		SeedAdminUser:    os.Getenv("SEED_ADMIN_USERNAME"),
		SeedAdminPass:    os.Getenv("SEED_ADMIN_PASSWORD"),
	}
	// The refresh path issues its own access tokens and may carry a
	// different lifetime than login.
	config.RefreshAccessTTL = getDuration("REFRESH_ACCESS_TTL", config.AccessTTL)

	return config, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Notice: invalid duration for %s: %q, using %s", key, v, def)
		return def
	}
	return d
}

// InitDB opens postgres when DB_HOST is set and falls back to a local
// sqlite file otherwise, then migrates both record types.
func InitDB(configuration *Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	if configuration.DBHost != "" {
		dsn := fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			configuration.DBUser, configuration.DBPassword,
			configuration.DBHost, configuration.DBPort, configuration.DBName,
		)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	} else {
		db, err = gorm.Open(sqlite.Open(configuration.SQLitePath), &gorm.Config{TranslateError: true})
	}
	if err != nil {
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Employee{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}
