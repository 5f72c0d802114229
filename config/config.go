/*
Copyright 2025 Tablelink Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "4100"

	DefaultPollingIntervalSec = 15
	DefaultPrintMaxRetries    = 5
	DefaultPrintBaseDelaySec  = 30
	DefaultOfflineMaxRetries  = 5
	DefaultRetentionDays      = 7
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"RELAY_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"RELAY_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"RELAY_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"RELAY_DATA_SOURCE_DNS"`
}

// PlatformConfig points the relay at the online-ordering platform's REST and
// push surfaces for one tenant.
type PlatformConfig struct {
	BaseURL             string `json:"base_url" envconfig:"RELAY_PLATFORM_BASE_URL"`
	PushURL             string `json:"push_url" envconfig:"RELAY_PLATFORM_PUSH_URL"`
	APIKey              string `json:"api_key" envconfig:"RELAY_PLATFORM_API_KEY"`
	TenantSlug          string `json:"tenant_slug" envconfig:"RELAY_PLATFORM_TENANT_SLUG"`
	PushEnabled         bool   `json:"push_enabled" envconfig:"RELAY_PLATFORM_PUSH_ENABLED"`
	PollingEnabled      bool   `json:"polling_enabled" envconfig:"RELAY_PLATFORM_POLLING_ENABLED"`
	PollingIntervalSec  int    `json:"polling_interval_sec" envconfig:"RELAY_PLATFORM_POLLING_INTERVAL_SEC"`
	TransportPreference string `json:"transport_preference" envconfig:"RELAY_PLATFORM_TRANSPORT_PREFERENCE"`
}

// PlatformDatabaseConfig is the read-only direct connection to the platform's
// own order tables, used by the tailing channel.
type PlatformDatabaseConfig struct {
	Enabled  bool   `json:"enabled" envconfig:"RELAY_PLATFORM_DB_ENABLED"`
	Host     string `json:"host" envconfig:"RELAY_PLATFORM_DB_HOST"`
	Port     int    `json:"port" envconfig:"RELAY_PLATFORM_DB_PORT"`
	Name     string `json:"name" envconfig:"RELAY_PLATFORM_DB_NAME"`
	User     string `json:"user" envconfig:"RELAY_PLATFORM_DB_USER"`
	Password string `json:"password" envconfig:"RELAY_PLATFORM_DB_PASSWORD"`
}

// PrinterConfig describes one physical printer on the restaurant LAN.
type PrinterConfig struct {
	PrinterID string `json:"printer_id"`
	Address   string `json:"address"`
	Kind      string `json:"kind"`
	Enabled   bool   `json:"enabled"`
}

type PrintingConfig struct {
	AutoPrint    bool            `json:"auto_print" envconfig:"RELAY_PRINTING_AUTO_PRINT"`
	MaxRetries   int             `json:"max_retries" envconfig:"RELAY_PRINTING_MAX_RETRIES"`
	BaseDelaySec int             `json:"base_delay_sec" envconfig:"RELAY_PRINTING_BASE_DELAY_SEC"`
	Printers     []PrinterConfig `json:"printers"`
}

type QueueConfig struct {
	OfflineMaxRetries int `json:"offline_max_retries" envconfig:"RELAY_QUEUE_OFFLINE_MAX_RETRIES"`
	RetentionDays     int `json:"retention_days" envconfig:"RELAY_QUEUE_RETENTION_DAYS"`
}

// RateLimitConfig bounds request rates on the ops API. All fields nil means
// rate limiting is off.
type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"RELAY_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"RELAY_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"RELAY_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName           string                 `json:"project_name" envconfig:"RELAY_PROJECT_NAME"`
	Server                ServerConfig           `json:"server"`
	DataSource            DataSourceConfig       `json:"data_source"`
	Platform              PlatformConfig         `json:"platform"`
	PlatformDatabase      PlatformDatabaseConfig `json:"platform_database"`
	Printing              PrintingConfig         `json:"printing"`
	Queue                 QueueConfig            `json:"queue"`
	RateLimit             RateLimitConfig        `json:"rate_limit"`
	Notification          Notification           `json:"notification"`
	FallbackPaymentMethod string                 `json:"fallback_payment_method" envconfig:"RELAY_FALLBACK_PAYMENT_METHOD"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("relay", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called relay.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Relay"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Platform.TenantSlug == "" {
		log.Println("Error: Platform tenant slug is empty. It's a required field.")
		return errors.New("platform tenant slug is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Platform.BaseURL = strings.TrimSpace(cnf.Platform.BaseURL)
	cnf.Platform.APIKey = strings.TrimSpace(cnf.Platform.APIKey)
	cnf.Platform.TenantSlug = strings.TrimSpace(cnf.Platform.TenantSlug)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Platform.PollingIntervalSec <= 0 {
		cnf.Platform.PollingIntervalSec = DefaultPollingIntervalSec
	}

	if cnf.Printing.MaxRetries <= 0 {
		cnf.Printing.MaxRetries = DefaultPrintMaxRetries
	}
	if cnf.Printing.BaseDelaySec <= 0 {
		cnf.Printing.BaseDelaySec = DefaultPrintBaseDelaySec
	}

	if cnf.Queue.OfflineMaxRetries <= 0 {
		cnf.Queue.OfflineMaxRetries = DefaultOfflineMaxRetries
	}
	if cnf.Queue.RetentionDays <= 0 {
		cnf.Queue.RetentionDays = DefaultRetentionDays
	}

	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	for i := range cnf.Printing.Printers {
		cnf.Printing.Printers[i].PrinterID = strings.TrimSpace(cnf.Printing.Printers[i].PrinterID)
		if cnf.Printing.Printers[i].Kind == "" {
			cnf.Printing.Printers[i].Kind = "receipt"
		}
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
