package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds realtime server configuration.
type Config struct {
	Addr            string        // listen address
	PlatformURL     string        // internal base URL of the stateless API tier
	SessionCookie   string        // cookie carrying the session credential
	AuthTimeout     time.Duration // ceiling on the synchronous session validation call
	TypingTimeout   time.Duration // typing entry expiry after the last signal
	ReadBufferSize  int
	WriteBufferSize int
}

// Default returns the default server configuration.
func Default() *Config {
	return &Config{
		Addr:            ":8090",
		PlatformURL:     "http://127.0.0.1:3000",
		SessionCookie:   "session",
		AuthTimeout:     3 * time.Second,
		TypingTimeout:   5 * time.Second,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// FromEnv loads configuration from environment variables, falling back to
// defaults for any missing values.
func FromEnv() *Config {
	cfg := Default()

	if addr := os.Getenv("REALTIME_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if u := os.Getenv("PLATFORM_API_URL"); u != "" {
		cfg.PlatformURL = u
	}
	if name := os.Getenv("SESSION_COOKIE"); name != "" {
		cfg.SessionCookie = name
	}
	if s := os.Getenv("AUTH_TIMEOUT_SECONDS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.AuthTimeout = time.Duration(n) * time.Second
		}
	}
	if s := os.Getenv("TYPING_TIMEOUT_SECONDS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.TypingTimeout = time.Duration(n) * time.Second
		}
	}
	if s := os.Getenv("WS_READ_BUFFER"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.ReadBufferSize = n
		}
	}
	if s := os.Getenv("WS_WRITE_BUFFER"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.WriteBufferSize = n
		}
	}
	return cfg
}
