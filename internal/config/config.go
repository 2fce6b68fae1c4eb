package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Security SecurityConfig `yaml:"security"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Orders   OrdersConfig   `yaml:"orders"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	UseHTTPS    bool     `yaml:"use_https"`
	CertFile    string   `yaml:"cert_file"`
	KeyFile     string   `yaml:"key_file"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig - настройки журнала событий ордеров
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres, sqlite3, mysql; пусто - журнал выключен
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	Path     string `yaml:"path"` // файл sqlite

	// Retention - сколько хранить события журнала; 0 - не чистить
	Retention time.Duration `yaml:"retention"`
}

// SecurityConfig - настройки безопасности API
type SecurityConfig struct {
	// bcrypt-хеш токена API; пусто - аутентификация выключена
	APITokenHash string `yaml:"api_token_hash"`
}

// GatewayConfig - подключение к шлюзу брокера
type GatewayConfig struct {
	Mode string `yaml:"mode"` // sim или bridge

	// bridge
	URL              string        `yaml:"url"`
	ClientID         int64         `yaml:"client_id"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	MaxMessageRate   int           `yaml:"max_message_rate"` // сообщений в секунду
	MaxReconnects    int           `yaml:"max_reconnects"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// sim
	SimStartID      int64         `yaml:"sim_start_id"`
	SimAutoFill     bool          `yaml:"sim_auto_fill"`
	SimFillDelay    time.Duration `yaml:"sim_fill_delay"`
	SimDefaultPrice float64       `yaml:"sim_default_price"`
}

// OrdersConfig - параметры координатора ордеров
type OrdersConfig struct {
	GrantTimeout  time.Duration `yaml:"grant_timeout"`
	CancelTimeout time.Duration `yaml:"cancel_timeout"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
	Retention     string        `yaml:"retention"` // evict_terminal или keep
	BusBuffer     int           `yaml:"bus_buffer"`
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			Name:    "orderflow",
			User:    "user",
			SSLMode: "disable",
			Path:    "orderflow.db",

			Retention: 30 * 24 * time.Hour,
		},
		Gateway: GatewayConfig{
			Mode:             "sim",
			URL:              "ws://127.0.0.1:4002/bridge",
			ReconnectDelay:   time.Second,
			PingInterval:     15 * time.Second,
			ReadTimeout:      30 * time.Second,
			MaxMessageRate:   45,
			MaxReconnects:    5,
			ReconnectBackoff: 500 * time.Millisecond,
			SimStartID:       1,
			SimAutoFill:      true,
			SimFillDelay:     200 * time.Millisecond,
			SimDefaultPrice:  100,
		},
		Orders: OrdersConfig{
			GrantTimeout:  10 * time.Second,
			CancelTimeout: 2 * time.Second,
			CallTimeout:   5 * time.Second,
			Retention:     "evict_terminal",
			BusBuffer:     256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load загружает конфигурацию: значения по умолчанию, затем YAML файл из CONFIG_FILE,
// затем переменные окружения (в том числе из .env)
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile накладывает YAML файл поверх текущих значений
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.UseHTTPS = getEnvAsBool("USE_HTTPS", c.Server.UseHTTPS)
	c.Server.CertFile = getEnv("CERT_FILE", c.Server.CertFile)
	c.Server.KeyFile = getEnv("KEY_FILE", c.Server.KeyFile)
	c.Server.CORSOrigins = getEnvAsList("CORS_ORIGINS", c.Server.CORSOrigins)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.SSLMode = getEnv("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Database.Retention = getEnvAsDuration("DB_RETENTION", c.Database.Retention)

	c.Security.APITokenHash = getEnv("API_TOKEN_HASH", c.Security.APITokenHash)

	c.Gateway.Mode = getEnv("GATEWAY_MODE", c.Gateway.Mode)
	c.Gateway.URL = getEnv("GATEWAY_URL", c.Gateway.URL)
	c.Gateway.ClientID = int64(getEnvAsInt("GATEWAY_CLIENT_ID", int(c.Gateway.ClientID)))
	c.Gateway.ReconnectDelay = getEnvAsDuration("WS_RECONNECT_DELAY", c.Gateway.ReconnectDelay)
	c.Gateway.PingInterval = getEnvAsDuration("WS_PING_INTERVAL", c.Gateway.PingInterval)
	c.Gateway.ReadTimeout = getEnvAsDuration("WS_READ_TIMEOUT", c.Gateway.ReadTimeout)
	c.Gateway.MaxMessageRate = getEnvAsInt("GATEWAY_MAX_MESSAGE_RATE", c.Gateway.MaxMessageRate)
	c.Gateway.MaxReconnects = getEnvAsInt("GATEWAY_MAX_RECONNECTS", c.Gateway.MaxReconnects)
	c.Gateway.ReconnectBackoff = getEnvAsDuration("GATEWAY_RECONNECT_BACKOFF", c.Gateway.ReconnectBackoff)
	c.Gateway.SimStartID = int64(getEnvAsInt("SIM_START_ID", int(c.Gateway.SimStartID)))
	c.Gateway.SimAutoFill = getEnvAsBool("SIM_AUTO_FILL", c.Gateway.SimAutoFill)
	c.Gateway.SimFillDelay = getEnvAsDuration("SIM_FILL_DELAY", c.Gateway.SimFillDelay)
	c.Gateway.SimDefaultPrice = getEnvAsFloat("SIM_DEFAULT_PRICE", c.Gateway.SimDefaultPrice)

	c.Orders.GrantTimeout = getEnvAsDuration("GRANT_TIMEOUT", c.Orders.GrantTimeout)
	c.Orders.CancelTimeout = getEnvAsDuration("CANCEL_TIMEOUT", c.Orders.CancelTimeout)
	c.Orders.CallTimeout = getEnvAsDuration("CALL_TIMEOUT", c.Orders.CallTimeout)
	c.Orders.Retention = getEnv("LEDGER_RETENTION", c.Orders.Retention)
	c.Orders.BusBuffer = getEnvAsInt("BUS_BUFFER", c.Orders.BusBuffer)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if err := c.validateRanges(); err != nil {
		return err
	}
	if err := c.validateModes(); err != nil {
		return err
	}
	return c.validateSecurity()
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	if c.Server.UseHTTPS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return fmt.Errorf("CERT_FILE and KEY_FILE are required when USE_HTTPS is enabled")
	}

	// bcrypt хеш: $2a$/$2b$/$2y$ и 60 символов
	if h := c.Security.APITokenHash; h != "" {
		if len(h) != 60 || !strings.HasPrefix(h, "$2") {
			return fmt.Errorf("API_TOKEN_HASH must be a bcrypt hash")
		}
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Driver != "" && c.Database.Driver != "sqlite3" {
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
		}
	}

	if c.Orders.GrantTimeout <= 0 {
		return fmt.Errorf("GRANT_TIMEOUT must be positive, got %v", c.Orders.GrantTimeout)
	}
	if c.Orders.CancelTimeout <= 0 {
		return fmt.Errorf("CANCEL_TIMEOUT must be positive, got %v", c.Orders.CancelTimeout)
	}
	if c.Orders.CallTimeout <= 0 {
		return fmt.Errorf("CALL_TIMEOUT must be positive, got %v", c.Orders.CallTimeout)
	}
	if c.Orders.BusBuffer < 1 {
		return fmt.Errorf("BUS_BUFFER must be at least 1, got %d", c.Orders.BusBuffer)
	}

	if c.Gateway.Mode == "bridge" {
		if c.Gateway.ReadTimeout <= 0 {
			return fmt.Errorf("WS_READ_TIMEOUT must be positive, got %v", c.Gateway.ReadTimeout)
		}
		if c.Gateway.MaxMessageRate < 1 {
			return fmt.Errorf("GATEWAY_MAX_MESSAGE_RATE must be positive, got %d", c.Gateway.MaxMessageRate)
		}
		if c.Gateway.MaxReconnects < 0 || c.Gateway.MaxReconnects > 10 {
			return fmt.Errorf("GATEWAY_MAX_RECONNECTS must be between 0 and 10, got %d", c.Gateway.MaxReconnects)
		}
	}

	return nil
}

// validateModes проверяет перечислимые параметры
func (c *Config) validateModes() error {
	switch c.Gateway.Mode {
	case "sim":
	case "bridge":
		if c.Gateway.URL == "" {
			return fmt.Errorf("GATEWAY_URL is required for bridge mode")
		}
	default:
		return fmt.Errorf("GATEWAY_MODE must be sim or bridge, got %q", c.Gateway.Mode)
	}

	switch c.Orders.Retention {
	case "evict_terminal", "keep":
	default:
		return fmt.Errorf("LEDGER_RETENTION must be evict_terminal or keep, got %q", c.Orders.Retention)
	}

	switch c.Database.Driver {
	case "", "postgres", "sqlite3", "mysql":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres, sqlite3 or mysql, got %q", c.Database.Driver)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

// JournalEnabled сообщает, настроен ли журнал событий ордеров
func (d DatabaseConfig) JournalEnabled() bool {
	return d.Driver != ""
}

// DSN возвращает строку подключения к базе данных для выбранного драйвера
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "sqlite3":
		return d.Path
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", d.User, d.Password, d.Host, d.Port, d.Name)
	default:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	}
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	switch d.Driver {
	case "sqlite3":
		return d.Path
	case "mysql":
		return fmt.Sprintf("%s@tcp(%s:%d)/%s", d.User, d.Host, d.Port, d.Name)
	default:
		return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Name, d.SSLMode)
	}
}

// Addr возвращает адрес HTTP сервера
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
