package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// 不安全的默认值列表 (生产环境不应使用)
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"internal-service-secret":              true,
	"":                                     true,
}

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Blog           BlogConfig
	SMTP           SMTPConfig
	Nginx          NginxConfig
	Cloudflare     CloudflareConfig
	Log            LogConfig
	InternalSecret string
}

type ServerConfig struct {
	Port string
	Mode string
}

// DatabaseConfig is the portal's own registry database (PostgreSQL).
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Schema   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey string
}

// BlogConfig covers the blog target system: the MariaDB server that backs
// WordPress sites and the wp-cli container that installs them.
type BlogConfig struct {
	// MariaDB access for database administration.
	DBContainer string
	DBBinary    string
	DBRootUser  string
	DBRootPass  string
	DBHost      string

	// Pre-provisioned application user shared by all WordPress sites.
	WPDBUser     string
	WPDBPassword string

	// wp-cli execution environment.
	WPContainer    string
	WPDocRoot      string
	WPLocale       string
	CommandTimeout time.Duration
	InstallTimeout time.Duration
}

type SMTPConfig struct {
	Host string
	Port int
}

type NginxConfig struct {
	ConfDir        string
	Container      string
	ServiceTarget  string
	CommandTimeout time.Duration
}

type CloudflareConfig struct {
	BaseURL   string
	AccountID string
	TunnelID  string
	APIToken  string
}

type LogConfig struct {
	Level       string
	Environment string
}

func Load() *Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8006"),
			Mode: getEnv("GIN_MODE", "release"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "portal_user"),
			Password: getEnv("DB_PASSWORD", "portal_pass"),
			DBName:   getEnv("DB_NAME", "portal_db"),
			Schema:   getEnv("DB_SCHEMA", "wordpress"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
		},
		Blog: BlogConfig{
			DBContainer:    getEnv("BLOG_DB_CONTAINER", "mariadb"),
			DBBinary:       getEnv("BLOG_DB_BINARY", "mariadb"),
			DBRootUser:     getEnv("BLOG_DB_ROOT_USER", "root"),
			DBRootPass:     getEnv("BLOG_DB_ROOT_PASSWORD", ""),
			DBHost:         getEnv("BLOG_DB_HOST", "mariadb"),
			WPDBUser:       getEnv("BLOG_WP_DB_USER", "wordpress"),
			WPDBPassword:   getEnv("BLOG_WP_DB_PASSWORD", ""),
			WPContainer:    getEnv("BLOG_WP_CONTAINER", "blog-wordpress"),
			WPDocRoot:      getEnv("BLOG_WP_DOCROOT", "/var/www/html"),
			WPLocale:       getEnv("BLOG_WP_LOCALE", "ja"),
			CommandTimeout: getEnvDuration("BLOG_COMMAND_TIMEOUT", 30*time.Second),
			InstallTimeout: getEnvDuration("BLOG_INSTALL_TIMEOUT", 120*time.Second),
		},
		SMTP: SMTPConfig{
			Host: getEnv("SMTP_HOST", "mailserver"),
			Port: getEnvInt("SMTP_PORT", 587),
		},
		Nginx: NginxConfig{
			ConfDir:        getEnv("NGINX_CONF_DIR", "/etc/nginx/conf.d/sites"),
			Container:      getEnv("NGINX_CONTAINER", "nginx"),
			ServiceTarget:  getEnv("NGINX_SERVICE_TARGET", "http://nginx:80"),
			CommandTimeout: getEnvDuration("NGINX_COMMAND_TIMEOUT", 10*time.Second),
		},
		Cloudflare: CloudflareConfig{
			BaseURL:   getEnv("CLOUDFLARE_API_BASE_URL", "https://api.cloudflare.com/client/v4"),
			AccountID: getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
			TunnelID:  getEnv("CLOUDFLARE_TUNNEL_ID", ""),
			APIToken:  getEnv("CLOUDFLARE_API_TOKEN", ""),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Environment: getEnv("APP_ENV", "development"),
		},
		InternalSecret: getEnv("INTERNAL_SECRET", ""),
	}

	return cfg
}

// Validate 验证配置有效性，生产环境必须设置安全的密钥
func (c *Config) Validate() error {
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.InternalSecret) < 32 {
		return fmt.Errorf("INTERNAL_SECRET must be at least 32 characters long")
	}

	if c.Blog.WPDBPassword == "" {
		return fmt.Errorf("BLOG_WP_DB_PASSWORD must be set (shared WordPress database user password)")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
