package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/codesprint/codesprint/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultFrontendBaseURL = "http://localhost:3000"

	defaultAccessTokenTTL       = 15 * time.Minute
	defaultRefreshTokenTTL      = 7 * 24 * time.Hour
	defaultVerificationTokenTTL = 24 * time.Hour
	defaultResetTokenTTL        = time.Hour
	defaultBcryptCost           = 10
)

type Config struct {
	// Logging
	LogLevel    string
	Environment string

	// Address the service listens on
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key signing JWT access tokens
	SecretKey string

	// Frontend base URL embedded into mailed token links
	FrontendBaseURL string

	// Token lifetimes
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration

	// Password hash cost factor
	BcryptCost int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:             defaultLoggingLevel,
		Environment:          defaultEnvironment,
		ListenAddr:           defaultListenAddr,
		FrontendBaseURL:      defaultFrontendBaseURL,
		AccessTokenTTL:       defaultAccessTokenTTL,
		RefreshTokenTTL:      defaultRefreshTokenTTL,
		VerificationTokenTTL: defaultVerificationTokenTTL,
		ResetTokenTTL:        defaultResetTokenTTL,
		BcryptCost:           defaultBcryptCost,
	}
}

// LoadDotEnv loads variables from a '.env' file in the working directory
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it is not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if d, err := time.ParseDuration(value); err == nil {
				*o = d
			}
		}
	}
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if i, err := strconv.Atoi(value); err == nil {
				*o = i
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"DATABASE_URI":           setString(&c.DatabaseDSN),
		"SECRET_KEY":             setString(&c.SecretKey),
		"FRONTEND_BASE_URL":      setString(&c.FrontendBaseURL),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"ENVIRONMENT":            setString(&c.Environment),
		"ACCESS_TOKEN_TTL":       setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL":      setDuration(&c.RefreshTokenTTL),
		"VERIFICATION_TOKEN_TTL": setDuration(&c.VerificationTokenTTL),
		"RESET_TOKEN_TTL":        setDuration(&c.ResetTokenTTL),
		"BCRYPT_COST":            setInt(&c.BcryptCost),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("codesprint", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.FrontendBaseURL, "frontend-url", "f", c.FrontendBaseURL, "Frontend base URL for mailed links")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.AccessTokenTTL, "access-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.DurationVar(&c.VerificationTokenTTL, "verification-ttl", c.VerificationTokenTTL, "Email verification token lifetime")
	fs.DurationVar(&c.ResetTokenTTL, "reset-ttl", c.ResetTokenTTL, "Password reset token lifetime")
	fs.IntVar(&c.BcryptCost, "bcrypt-cost", c.BcryptCost, "Password hash cost factor")

	return fs.Parse(args)
}
