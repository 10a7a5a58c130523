package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrParsingEnv is returned when environment variables cannot be parsed.
var ErrParsingEnv = errors.New("failed to parse environment variables")

// Env holds deployment settings and secrets that do not belong in the YAML file.
type Env struct {
	Addr       string `env:"SENTINEL_ADDR" envDefault:":8080"`
	ConfigPath string `env:"SENTINEL_CONFIG" envDefault:"configs/sentinel.yaml"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"text"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"alerts@sentinel.local"`
	EmailDevDir          string `env:"EMAIL_DEV_DIR" envDefault:"tmp/emails"`

	RedisURL         string `env:"REDIS_URL"`
	RedisPushChannel string `env:"REDIS_PUSH_CHANNEL" envDefault:"sentinel:push"`
}

// LoadEnv reads .env (if present) and parses the process environment.
func LoadEnv() (Env, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, errors.Join(ErrParsingEnv, err)
	}
	return e, nil
}

// PostmarkEnabled reports whether both Postmark tokens are configured.
func (e Env) PostmarkEnabled() bool {
	return e.PostmarkServerToken != "" && e.PostmarkAccountToken != ""
}
