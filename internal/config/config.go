package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	AppBaseURL    string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	DatabaseURL   string `env:"DATABASE_URL,required"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`

	JWTSecret            string `env:"JWT_SECRET,required,notEmpty"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"60"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	VerificationTokenTTLMinutes int  `env:"VERIFICATION_TOKEN_TTL_MINUTES" envDefault:"1440"`
	ResetTokenTTLMinutes        int  `env:"RESET_TOKEN_TTL_MINUTES" envDefault:"60"`
	RequireEmailVerification    bool `env:"REQUIRE_EMAIL_VERIFICATION" envDefault:"true"`
	RevealLoginFailureReason    bool `env:"REVEAL_LOGIN_FAILURE_REASON" envDefault:"false"`
	PasswordMinLength           int  `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	PasswordRequireMixed        bool `env:"PASSWORD_REQUIRE_MIXED" envDefault:"true"`
	BcryptCost                  int  `env:"BCRYPT_COST" envDefault:"12"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Flowdesk"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	DeliveryRateWindowMinutes int `env:"DELIVERY_RATE_WINDOW_MINUTES" envDefault:"15"`
	DeliveryRateMax           int `env:"DELIVERY_RATE_MAX" envDefault:"5"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rechaza duraciones que harían fallar cada emisión de tokens.
func (c *Config) validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"JWT_ACCESS_TTL_MINUTES", c.JWTAccessTTLMinutes},
		{"JWT_REFRESH_TTL_MINUTES", c.JWTRefreshTTLMinutes},
		{"VERIFICATION_TOKEN_TTL_MINUTES", c.VerificationTokenTTLMinutes},
		{"RESET_TOKEN_TTL_MINUTES", c.ResetTokenTTLMinutes},
		{"DELIVERY_RATE_WINDOW_MINUTES", c.DeliveryRateWindowMinutes},
		{"DELIVERY_RATE_MAX", c.DeliveryRateMax},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	return nil
}

// IsProduction indica si deben ocultarse detalles internos de los errores.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLMinutes) * time.Minute
}

func (c *Config) VerificationTTL() time.Duration {
	return time.Duration(c.VerificationTokenTTLMinutes) * time.Minute
}

func (c *Config) ResetTTL() time.Duration {
	return time.Duration(c.ResetTokenTTLMinutes) * time.Minute
}

func (c *Config) DeliveryRateWindow() time.Duration {
	return time.Duration(c.DeliveryRateWindowMinutes) * time.Minute
}
