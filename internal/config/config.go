// Package config loads runtime configuration from the environment (and an
// optional .env file via godotenv), generalizing the teacher bot's
// hand-rolled env.go reader to the full knob set this engine needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func lookupEnv(key string) string { return os.Getenv(key) }

// Config holds every runtime knob the Supervisor needs to wire the engine.
// Missing required credentials or an invalid symbol list is a fatal
// configuration error (the engine exits before the Supervisor is built);
// see Validate.
type Config struct {
	Symbols []string // e.g. ["BTC-USDT-SWAP", "ETH-USDT-SWAP"]

	ExchangeBaseURL string
	ExchangeWSURL   string
	APIKey          string
	APISecret       string
	APIPassphrase   string

	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	MaxPositionSize float64 // absolute position size cap in base-asset units, e.g. 0.05
	MinBalance      float64
	MaxDailyLossPct float64
	MaxDrawdownPct  float64
	InitialEquity   float64

	AgentInterval       time.Duration
	CoordinatorInterval time.Duration
	CoordinatorWarmup   time.Duration
	AdvisoryDecayWindow time.Duration
	CooldownSeconds     int

	PriceWindowSize int
	MetricsPort     int
	LogLevel        string

	DryRun bool
}

// Load reads .env (if present) then the process environment, applying the
// teacher's "only the keys we need, never clobber an already-exported
// value" discipline.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	_ = godotenv.Load(envFiles...) // missing .env is not an error; env vars may be set directly

	cfg := Config{
		Symbols:             splitCSV(getEnv("SYMBOLS", "BTC-USDT-SWAP")),
		ExchangeBaseURL:     getEnv("EXCHANGE_BASE_URL", "https://api.exchange.example"),
		ExchangeWSURL:       getEnv("EXCHANGE_WS_URL", "wss://ws.exchange.example/public"),
		APIKey:              getEnv("API_KEY", ""),
		APISecret:           getEnv("API_SECRET", ""),
		APIPassphrase:       getEnv("API_PASSPHRASE", ""),
		LLMBaseURL:          getEnv("LLM_BASE_URL", "https://api.llm.example"),
		LLMModel:            getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:           getEnv("LLM_API_KEY", ""),
		MaxPositionSize:     getEnvFloat("MAX_POSITION_SIZE", 0.05),
		MinBalance:          getEnvFloat("MIN_BALANCE", 100),
		MaxDailyLossPct:     getEnvFloat("MAX_DAILY_LOSS_PCT", 0.05),
		MaxDrawdownPct:      getEnvFloat("MAX_DRAWDOWN_PCT", 0.05),
		InitialEquity:       getEnvFloat("INITIAL_EQUITY", 1000),
		AgentInterval:       getEnvSeconds("AGENT_INTERVAL_SEC", 15),
		CoordinatorInterval: getEnvSeconds("COORDINATOR_INTERVAL_SEC", 30),
		CoordinatorWarmup:   getEnvSeconds("COORDINATOR_WARMUP_SEC", 10),
		AdvisoryDecayWindow: getEnvSeconds("ADVISORY_DECAY_WINDOW_SEC", 60),
		CooldownSeconds:     getEnvInt("COOLDOWN_SECONDS", 5),
		PriceWindowSize:     getEnvInt("PRICE_WINDOW_SIZE", 100),
		MetricsPort:         getEnvInt("METRICS_PORT", 9090),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DryRun:              getEnvBool("DRY_RUN", true),
	}
	return cfg
}

// Validate reports the first configuration error found, per the fatal
// configuration-error class: missing credentials or an empty symbol list.
func (c Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: no symbols configured")
	}
	if !c.DryRun && (c.APIKey == "" || c.APISecret == "") {
		return fmt.Errorf("config: API_KEY/API_SECRET required when DRY_RUN=false")
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("config: MAX_POSITION_SIZE must be in (0,1], got %v", c.MaxPositionSize)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(lookupEnv(key))
	if v == "" {
		return def
	}
	return v
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(lookupEnv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(lookupEnv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(lookupEnv(key)))
	switch v {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}

func getEnvSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defSeconds)) * time.Second
}
