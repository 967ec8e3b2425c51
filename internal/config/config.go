package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Redis    RedisConfig
	Chain    ChainConfig
	Provider ProviderConfig
	Payment  PaymentConfig
	Engine   EngineConfig
	Server   ServerConfig
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ChainConfig struct {
	RPCURL          string `mapstructure:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address"`
	OperatorKey     string `mapstructure:"operator_key"`
	ChainID         int64  `mapstructure:"chain_id"`
}

type ProviderConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

type PaymentConfig struct {
	APIURL        string `mapstructure:"api_url"`
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type EngineConfig struct {
	PollIntervalSec   int64 `mapstructure:"poll_interval_sec"`
	PollBufferSec     int64 `mapstructure:"poll_buffer_sec"`
	DailyRequestLimit int64 `mapstructure:"daily_request_limit"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("engine.poll_interval_sec", 5)
	v.SetDefault("engine.poll_buffer_sec", 60)
	v.SetDefault("engine.daily_request_limit", 200)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"redis.addr":                 "REDIS_ADDR",
		"redis.password":             "REDIS_PASSWORD",
		"chain.rpc_url":              "RPC_URL",
		"chain.contract_address":     "LEDGER_CONTRACT",
		"chain.operator_key":         "OPERATOR_KEY",
		"chain.chain_id":             "CHAIN_ID",
		"provider.api_url":           "PROVIDER_API_URL",
		"provider.api_key":           "PROVIDER_API_KEY",
		"payment.api_url":            "CREEM_API_URL",
		"payment.api_key":            "CREEM_API_KEY",
		"payment.webhook_secret":     "CREEM_WEBHOOK_SECRET",
		"engine.poll_interval_sec":   "POLL_INTERVAL_SEC",
		"engine.poll_buffer_sec":     "POLL_BUFFER_SEC",
		"engine.daily_request_limit": "DAILY_REQUEST_LIMIT",
		"server.port":                "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Chain.RPCURL, "RPC_URL"},
		{c.Chain.ContractAddress, "LEDGER_CONTRACT"},
		{c.Chain.OperatorKey, "OPERATOR_KEY"},
		{c.Provider.APIURL, "PROVIDER_API_URL"},
		{c.Payment.APIURL, "CREEM_API_URL"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}
	return nil
}
