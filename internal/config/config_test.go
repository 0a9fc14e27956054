package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"carma/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("CARMA_GATEWAY", "http://node.test:8080")

	yamlContent := `
database:
  path: "test.db"
chain:
  gateway_url: "${CARMA_GATEWAY}"
  poll_interval: 1s
  allow_local_booking_ids: false
cars:
  - id: "1"
    name: "Tesla Model 3"
    price_per_day: 89
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Chain.GatewayURL != "http://node.test:8080" {
		t.Errorf("expected expanded gateway url, got %s", cfg.Chain.GatewayURL)
	}
	if cfg.Chain.PollInterval != time.Second {
		t.Errorf("expected poll interval 1s, got %s", cfg.Chain.PollInterval)
	}
	if cfg.Chain.LocalBookingIDsAllowed() {
		t.Errorf("expected local booking ids to be disabled")
	}
	if len(cfg.Cars) != 1 || cfg.Cars[0].ID != "1" {
		t.Errorf("expected 1 car with ID 1")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		cfg := Config{
			Database: DatabaseConfig{Path: "path"},
			Chain:    ChainConfig{GatewayURL: "http://node"},
			Cars:     []models.Car{{ID: "1", Name: "Car", PricePerDay: 10}},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "memory driver without path", mutate: func(c *Config) { c.Database = DatabaseConfig{Driver: "memory"} }, wantErr: false},
		{name: "missing db path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: true},
		{name: "missing gateway", mutate: func(c *Config) { c.Chain.GatewayURL = "" }, wantErr: true},
		{name: "amqp without exchange", mutate: func(c *Config) { c.AMQP.URL = "amqp://localhost" }, wantErr: true},
		{
			name: "duplicate car id",
			mutate: func(c *Config) {
				c.Cars = append(c.Cars, models.Car{ID: "1", Name: "Other", PricePerDay: 5})
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Chain.PollInterval != models.DefaultPollInterval {
		t.Errorf("expected default poll interval %s, got %s", models.DefaultPollInterval, cfg.Chain.PollInterval)
	}
	if cfg.Chain.PollAttempts != models.DefaultPollAttempts {
		t.Errorf("expected default poll attempts %d, got %d", models.DefaultPollAttempts, cfg.Chain.PollAttempts)
	}
	if cfg.Chain.ContractIndex != models.DefaultContractIndex {
		t.Errorf("expected default contract index %d, got %d", models.DefaultContractIndex, cfg.Chain.ContractIndex)
	}
	if cfg.API.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.API.GRPC.Port)
	}
	if cfg.Public.BaseURL != "http://localhost:8080" {
		t.Errorf("unexpected default public base url %s", cfg.Public.BaseURL)
	}
	if !cfg.Chain.LocalBookingIDsAllowed() {
		t.Errorf("expected local booking ids allowed by default")
	}
	if !cfg.Verification.Required() {
		t.Errorf("expected verification required by default")
	}
}

func TestValidateCars(t *testing.T) {
	tests := []struct {
		name    string
		cars    []models.Car
		wantErr bool
	}{
		{
			name:    "Valid cars",
			cars:    []models.Car{{ID: "1", Name: "A", PricePerDay: 10}, {ID: "2", Name: "B", PricePerDay: 20}},
			wantErr: false,
		},
		{
			name:    "Empty ID",
			cars:    []models.Car{{ID: " ", Name: "A", PricePerDay: 10}},
			wantErr: true,
		},
		{
			name:    "Zero price",
			cars:    []models.Car{{ID: "1", Name: "A"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCars(tt.cars)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCars() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
