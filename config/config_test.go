package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestValidateAndAddDefaults(t *testing.T) {
	// Missing data source DNS
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: ""},
		Platform:   PlatformConfig{TenantSlug: "demo-kitchen"},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}

	// Missing tenant slug
	cnf = Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "platform tenant slug is required" {
		t.Errorf("Expected tenant slug required error, got %v", err)
	}

	// All required fields filled, expect no error and defaults applied
	cnf = Configuration{
		ProjectName: "Test Relay",
		DataSource:  DataSourceConfig{Dns: "some-dns"},
		Platform:    PlatformConfig{TenantSlug: "demo-kitchen"},
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if cnf.Server.Port != DEFAULT_PORT {
		t.Errorf("Expected default port %s, got %s", DEFAULT_PORT, cnf.Server.Port)
	}
	if cnf.Platform.PollingIntervalSec != DefaultPollingIntervalSec {
		t.Errorf("Expected default polling interval, got %d", cnf.Platform.PollingIntervalSec)
	}
	if cnf.Printing.MaxRetries != DefaultPrintMaxRetries {
		t.Errorf("Expected default print max retries, got %d", cnf.Printing.MaxRetries)
	}
	if cnf.Queue.RetentionDays != DefaultRetentionDays {
		t.Errorf("Expected default retention days, got %d", cnf.Queue.RetentionDays)
	}
}

func TestPrinterDefaults(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "some-dns"},
		Platform:   PlatformConfig{TenantSlug: "demo-kitchen"},
		Printing: PrintingConfig{
			Printers: []PrinterConfig{
				{PrinterID: " front-desk ", Address: "192.168.1.50:9100", Enabled: true},
			},
		},
	}

	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("validateAndAddDefaults failed: %v", err)
	}

	if cnf.Printing.Printers[0].PrinterID != "front-desk" {
		t.Errorf("Expected trimmed printer id, got %q", cnf.Printing.Printers[0].PrinterID)
	}
	if cnf.Printing.Printers[0].Kind != "receipt" {
		t.Errorf("Expected default printer kind receipt, got %q", cnf.Printing.Printers[0].Kind)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	// Create a temporary file
	tmpFile, err := os.CreateTemp("", "relay.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name()) // Clean up after the test

	sampleConfig := Configuration{
		ProjectName: "Temp Relay",
		DataSource:  DataSourceConfig{Dns: "temp-dns"},
		Platform:    PlatformConfig{TenantSlug: "temp-tenant", BaseURL: "https://platform.example.com"},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close() // Close the file so loadConfigFromFile can open it

	// Set an environment variable to override the project name
	os.Setenv("RELAY_PROJECT_NAME", "Env Relay")
	defer os.Unsetenv("RELAY_PROJECT_NAME") // Clean up after the test

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	loadedConfig, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if loadedConfig.ProjectName != "Env Relay" {
		t.Errorf("Expected env override of project name, got %q", loadedConfig.ProjectName)
	}
	if loadedConfig.Platform.TenantSlug != "temp-tenant" {
		t.Errorf("Expected tenant slug from file, got %q", loadedConfig.Platform.TenantSlug)
	}
}
