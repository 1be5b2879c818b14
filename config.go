package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Application configuration.
type config struct {
	ListenAddr        string
	JWTSecret         string
	TokenTTL          time.Duration
	DBPath            string
	MintAPIURL        string
	RedisAddr         string
	EnableReplayGuard bool
	AdminEmails       []string
	AllowedOrigins    []string
	Debug             bool
}

// envOr returns the value of an environment variable, or a fallback if it is
// unset. Used so that flag defaults can be provided through a .env file.
func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// Parse command-line arguments.
// Returns a config struct with the parsed arguments.
func parseArguments() (config, error) {
	// Load a .env file if one is present. Flags still take precedence.
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("POAP_ADDR", "0.0.0.0:8080"), "Address on which to listen to HTTP requests")
	jwtSecret := flag.String("jwt-secret", envOr("POAP_JWT_SECRET", ""), "The shared secret used to validate caller bearer tokens (HS256)")
	dbPath := flag.String("db-path", envOr("POAP_DB_PATH", "db.sqlite3"), "sqlite3 database path")
	tokenTTL := flag.String("token-ttl", envOr("POAP_TOKEN_TTL", "30s"), "The duration after which an issued attendance token expires, eg, 30s")
	mintAPIURL := flag.String("mint-api-url", envOr("POAP_MINT_API_URL", "http://127.0.0.1:8899"), "URL for the credential minting service")
	redisAddr := flag.String("redis-addr", envOr("POAP_REDIS_ADDR", ""), "Optional redis address for the token replay guard")
	replayGuard := flag.Bool("replay-guard", envOr("POAP_REPLAY_GUARD", "") != "", "Whether to reject reuse of a still-valid token nonce")
	adminEmails := flag.String("admins", envOr("POAP_ADMINS", ""), "Comma-separated list of admin emails allowed to delete events")
	allowedOrigins := flag.String("allowed-origins", envOr("POAP_ALLOWED_ORIGINS", "*"), "Comma-separated list of allowed CORS origins")
	debug := flag.Bool("debug", false, "Whether to enable verbose logging")
	flag.Parse()

	if *jwtSecret == "" {
		return config{}, errors.New("invalid -jwt-secret argument")
	}

	ttl, err := time.ParseDuration(*tokenTTL)
	if err != nil {
		return config{}, fmt.Errorf("invalid -token-ttl argument: %v", err)
	}
	if ttl <= 0 {
		return config{}, errors.New("invalid -token-ttl argument: must be positive")
	}

	if u, err := url.Parse(*mintAPIURL); err != nil {
		return config{}, fmt.Errorf("invalid -mint-api-url argument: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		return config{}, fmt.Errorf("invalid -mint-api-url argument: invalid scheme '%s'", u.Scheme)
	}

	return config{
		ListenAddr:        *addr,
		JWTSecret:         *jwtSecret,
		TokenTTL:          ttl,
		DBPath:            *dbPath,
		MintAPIURL:        *mintAPIURL,
		RedisAddr:         *redisAddr,
		EnableReplayGuard: *replayGuard || *redisAddr != "",
		AdminEmails:       splitList(*adminEmails),
		AllowedOrigins:    splitList(*allowedOrigins),
		Debug:             *debug,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
