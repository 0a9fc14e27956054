package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"carma/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Backup       BackupConfig       `yaml:"backup"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	API          APIConfig          `yaml:"api"`
	Chain        ChainConfig        `yaml:"chain"`
	Verification VerificationConfig `yaml:"verification"`
	Public       PublicConfig       `yaml:"public"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	AMQP         AMQPConfig         `yaml:"amqp"`
	Google       GoogleConfig       `yaml:"google"`
	Dispatcher   DispatcherConfig   `yaml:"dispatcher"`
	Exports      ExportsConfig      `yaml:"exports"`
	Cars         []models.Car       `yaml:"cars"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ChainConfig struct {
	GatewayURL           string        `yaml:"gateway_url"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	ContractIndex        uint64        `yaml:"contract_index"`
	ContractName         string        `yaml:"contract_name"`
	MaxEnergy            uint64        `yaml:"max_energy"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	PollAttempts         int           `yaml:"poll_attempts"`
	AllowLocalBookingIDs *bool         `yaml:"allow_local_booking_ids"`
}

// LocalBookingIDsAllowed reports whether a booking may fall back to a locally
// generated id when the contract does not return a code.
func (c ChainConfig) LocalBookingIDsAllowed() bool {
	return c.AllowLocalBookingIDs == nil || *c.AllowLocalBookingIDs
}

type VerificationConfig struct {
	SessionTTL         time.Duration `yaml:"session_ttl"`
	RequiredForBooking *bool         `yaml:"required_for_booking"`
}

// Required reports whether bookings need a verified account.
func (c VerificationConfig) Required() bool {
	return c.RequiredForBooking == nil || *c.RequiredForBooking
}

type PublicConfig struct {
	BaseURL string `yaml:"base_url"`
}

type TelegramConfig struct {
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
	Debug    bool    `yaml:"debug"`

	// ManagerIDs are the Telegram users allowed to drive the desk bot.
	// The bot does not start when the list is empty.
	ManagerIDs []int64 `yaml:"manager_ids"`
}

type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BookingSpreadSheetID  string `yaml:"bookings_spreadsheet_id"`
	BookingsSheetName     string `yaml:"bookings_sheet_name"`

	// SyncOnStart rewrites the sheet from the booking store at startup.
	SyncOnStart bool `yaml:"sync_on_start"`
}

type DispatcherConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	DeadLetterKey string        `yaml:"dead_letter_key"`
}

type ExportsConfig struct {
	// Dir receives workbooks saved through the admin export endpoint.
	Dir string `yaml:"dir"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Chain.GatewayURL == "" {
		return errors.New("chain gateway_url is required")
	}
	if c.Chain.PollAttempts < 1 {
		return errors.New("chain poll_attempts must be positive")
	}

	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		return errors.New("amqp exchange is required when amqp url is set")
	}

	return ValidateCars(c.Cars)
}

func ValidateCars(cars []models.Car) error {
	ids := make(map[string]bool)
	for _, car := range cars {
		if strings.TrimSpace(car.ID) == "" {
			return fmt.Errorf("car '%s' has empty ID", car.Name)
		}
		if ids[car.ID] {
			return fmt.Errorf("duplicate car ID found: %s", car.ID)
		}
		if car.PricePerDay <= 0 {
			return fmt.Errorf("car '%s' has non-positive price", car.ID)
		}
		ids[car.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "carma"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Chain.RequestTimeout == 0 {
		c.Chain.RequestTimeout = 10 * time.Second
	}
	if c.Chain.ContractIndex == 0 {
		c.Chain.ContractIndex = models.DefaultContractIndex
	}
	if c.Chain.ContractName == "" {
		c.Chain.ContractName = models.DefaultContractName
	}
	if c.Chain.MaxEnergy == 0 {
		c.Chain.MaxEnergy = models.DefaultMaxEnergy
	}
	if c.Chain.PollInterval == 0 {
		c.Chain.PollInterval = models.DefaultPollInterval
	}
	if c.Chain.PollAttempts == 0 {
		c.Chain.PollAttempts = models.DefaultPollAttempts
	}

	if c.Verification.SessionTTL == 0 {
		c.Verification.SessionTTL = models.DefaultSessionTTL
	}
	if c.Public.BaseURL == "" {
		c.Public.BaseURL = fmt.Sprintf("http://localhost:%d", c.API.HTTP.Port)
	}
	c.Public.BaseURL = strings.TrimRight(c.Public.BaseURL, "/")

	if c.AMQP.RoutingKey == "" {
		c.AMQP.RoutingKey = "carma.events"
	}
	if c.Google.BookingsSheetName == "" {
		c.Google.BookingsSheetName = "Bookings"
	}

	if c.Dispatcher.QueueSize == 0 {
		c.Dispatcher.QueueSize = models.WorkerQueueSize
	}
	if c.Dispatcher.MaxRetries == 0 {
		c.Dispatcher.MaxRetries = 5
	}
	if c.Dispatcher.InitialDelay == 0 {
		c.Dispatcher.InitialDelay = time.Second
	}
	if c.Dispatcher.MaxDelay == 0 {
		c.Dispatcher.MaxDelay = time.Minute
	}
	if c.Dispatcher.DeadLetterKey == "" {
		c.Dispatcher.DeadLetterKey = "carma:events:deadletter"
	}
}
