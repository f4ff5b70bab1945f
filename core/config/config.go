package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	MCP        MCPConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	Whatsapp   WhatsappConfig
	WorkerPool WorkerPoolConfig
	Security   SecurityConfig
}

type AppConfig struct {
	Version        string
	Port           string
	Debug          bool
	Environment    string
	BasicAuth      []string
	BasePath       string
	TrustedProxies []string
	ServerID       string
}

type MCPConfig struct {
	Port string
	Host string
}

type PathsConfig struct {
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name otherwise
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

type WhatsappConfig struct {
	GraphURL      string
	APIVersion    string
	VerifyToken   string
	AppSecret     string
	HTTPTimeout   time.Duration
	MaxUploadSize int64
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

type SecurityConfig struct {
	SecretKey string
}

const defaultSecretKey = "changeme_please_change_me_in_prod_12345"

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_port", "3000")
	v.SetDefault("app_debug", false)
	v.SetDefault("app_env", "development")
	v.SetDefault("app_base_path", "")
	v.SetDefault("app_storages", "storages")

	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "")
	v.SetDefault("valkey_enabled", false)
	v.SetDefault("valkey_address", "localhost:6379")
	v.SetDefault("valkey_db", 0)
	v.SetDefault("valkey_key_prefix", "wagw:")

	v.SetDefault("whatsapp_graph_url", "https://graph.facebook.com")
	v.SetDefault("whatsapp_api_version", "v21.0")
	v.SetDefault("whatsapp_http_timeout", "30s")
	v.SetDefault("whatsapp_max_upload_size", 16*1024*1024)

	v.SetDefault("message_worker_pool_size", 20)
	v.SetDefault("message_worker_queue_size", 1000)

	v.SetDefault("app_secret_key", defaultSecretKey)

	v.SetDefault("mcp_port", "8080")
	v.SetDefault("mcp_host", "localhost")
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		logrus.Debug("[CONFIG] No .env file found, using environment only")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	storages := v.GetString("app_storages")

	cfg := &Config{
		App: AppConfig{
			Version:        "v1.0.0",
			Port:           v.GetString("app_port"),
			Debug:          v.GetBool("app_debug"),
			Environment:    v.GetString("app_env"),
			BasicAuth:      splitList(v.GetString("app_basic_auth")),
			BasePath:       v.GetString("app_base_path"),
			TrustedProxies: splitList(v.GetString("app_trusted_proxies")),
			ServerID:       v.GetString("server_id"),
		},
		MCP:   MCPConfig{Port: v.GetString("mcp_port"), Host: v.GetString("mcp_host")},
		Paths: PathsConfig{Storages: storages},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("db_driver")),
			Host:            v.GetString("db_host"),
			Port:            v.GetInt("db_port"),
			User:            v.GetString("db_user"),
			Password:        v.GetString("db_password"),
			Name:            v.GetString("db_name"),
			ValkeyEnabled:   v.GetBool("valkey_enabled"),
			ValkeyAddress:   v.GetString("valkey_address"),
			ValkeyPassword:  v.GetString("valkey_password"),
			ValkeyDB:        v.GetInt("valkey_db"),
			ValkeyKeyPrefix: v.GetString("valkey_key_prefix"),
		},
		Whatsapp: WhatsappConfig{
			GraphURL:      strings.TrimRight(v.GetString("whatsapp_graph_url"), "/"),
			APIVersion:    v.GetString("whatsapp_api_version"),
			VerifyToken:   v.GetString("whatsapp_verify_token"),
			AppSecret:     v.GetString("whatsapp_app_secret"),
			HTTPTimeout:   v.GetDuration("whatsapp_http_timeout"),
			MaxUploadSize: v.GetInt64("whatsapp_max_upload_size"),
		},
		WorkerPool: WorkerPoolConfig{
			Size:      v.GetInt("message_worker_pool_size"),
			QueueSize: v.GetInt("message_worker_queue_size"),
		},
		Security: SecurityConfig{SecretKey: v.GetString("app_secret_key")},
	}

	if cfg.Database.Name == "" && (cfg.Database.Driver == "sqlite" || cfg.Database.Driver == "") {
		cfg.Database.Name = filepath.Join(storages, "gateway.db")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "", "sqlite", "postgres", "sqlserver":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "" && c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required for driver %s", c.Database.Driver)
	}
	if c.Whatsapp.HTTPTimeout <= 0 {
		return fmt.Errorf("WHATSAPP_HTTP_TIMEOUT must be positive")
	}
	if c.Security.SecretKey == defaultSecretKey {
		logrus.Warn("[CONFIG] APP_SECRET_KEY is the default value; access tokens are not safe at rest")
	}
	if c.Whatsapp.VerifyToken == "" {
		logrus.Warn("[CONFIG] WHATSAPP_VERIFY_TOKEN is empty; webhook verification will reject every handshake")
	}
	return nil
}
