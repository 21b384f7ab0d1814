package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig    `mapstructure:"server"`
	DB           DBConfig        `mapstructure:"db"`
	JWT          JWTConfig       `mapstructure:"jwt"`
	Keycloak     KeycloakConfig  `mapstructure:"keycloak"`
	Paddle       PaddleConfig    `mapstructure:"paddle"`
	CRM          CRMConfig       `mapstructure:"crm"`
	Redis        RedisConfig     `mapstructure:"redis"`
	Discord      DiscordConfig   `mapstructure:"discord"`
	Telemetry    TelemetryConfig `mapstructure:"telemetry"`
	SharedSecret string          `mapstructure:"shared_secret"`
	LogLevel     string          `mapstructure:"log_level"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout"`
}

type DBConfig struct {
	Source string `mapstructure:"source"`
}

// JWTConfig controls bearer token validation. Tokens are checked against the
// identity provider's JWKS; Secret additionally enables HS256 tokens for local
// development.
type JWTConfig struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	JWKSURL  string `mapstructure:"jwks_url"`
	Audience string `mapstructure:"audience"`
}

type KeycloakConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Realm         string `mapstructure:"realm"`
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type PaddleConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type CRMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	ListID  int64  `mapstructure:"list_id"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DiscordConfig struct {
	PublicKey string `mapstructure:"public_key"`
}

type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.AddConfigPath("./configs")
	v.AddConfigPath("/configs")
	v.SetConfigName("settings")
	v.SetConfigType("yml")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.task_timeout", 30*time.Second)
	v.SetDefault("paddle.base_url", "https://api.paddle.com")
	v.SetDefault("crm.base_url", "https://api.brevo.com/v3")
	v.SetDefault("telemetry.service_name", "meet-backend")
	v.SetDefault("log_level", "info")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// AutomaticEnv only resolves keys viper already knows about, so every
	// secret gets an explicit binding.
	for _, key := range []string{
		"db.source",
		"jwt.secret", "jwt.issuer", "jwt.jwks_url", "jwt.audience",
		"keycloak.base_url", "keycloak.realm", "keycloak.client_id", "keycloak.client_secret", "keycloak.webhook_secret",
		"paddle.api_key", "paddle.webhook_secret",
		"crm.api_key", "crm.list_id",
		"redis.addr", "redis.password", "redis.db",
		"discord.public_key",
		"telemetry.endpoint", "telemetry.insecure",
		"shared_secret",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
