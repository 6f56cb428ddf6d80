package core

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name" validate:"required"`
	Params map[string]any `yaml:",inline"`
}

// CollectionConfig describes one CMS service and the endpoints read from it
type CollectionConfig struct {
	Name          string   `yaml:"name" validate:"required"`
	ServiceDomain string   `yaml:"serviceDomain" validate:"required"`
	APIKeyEnv     string   `yaml:"apiKeyEnv" validate:"required"`
	Endpoints     []string `yaml:"endpoints" validate:"required,min=1,dive,required"`
	// ImageField is the dotted path of the image URL inside every entry
	ImageField string `yaml:"imageField" validate:"required"`
	// BaseURL overrides https://<serviceDomain>.microcms.io/api/v1
	BaseURL string `yaml:"baseURL"`

	// APIKey is resolved from APIKeyEnv when the configuration is loaded
	APIKey string `yaml:"-"`
}

type Concurrency struct {
	// Endpoints bounds concurrent endpoint fetches per collection, <= 0 is unbounded
	Endpoints int `yaml:"endpoints"`
	// Downloads bounds concurrent image downloads per endpoint, <= 0 is unbounded
	Downloads int `yaml:"downloads"`
}

type OptimizerConfig struct {
	FailFast bool            `yaml:"failFast"`
	Commands []CommandConfig `yaml:"commands" validate:"dive"`
	Formats  []CommandConfig `yaml:"formats" validate:"required,min=1,dive"`
}

type Database struct {
	Type             string `yaml:"type" validate:"required,oneof=sqlite redis"`
	ConnectionString string `yaml:"connectionString" validate:"required"`
}

type ServiceConfig struct {
	BuildDir              string             `yaml:"buildDir" validate:"required"`
	AssetsDir             string             `yaml:"assetsDir" validate:"required"`
	LogLevel              string             `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	SequentialCollections bool               `yaml:"sequentialCollections"`
	HTTPTimeout           time.Duration      `yaml:"httpTimeout" validate:"min=0"`
	PageDelay             time.Duration      `yaml:"pageDelay" validate:"min=0"`
	Concurrency           Concurrency        `yaml:"concurrency"`
	Collections           []CollectionConfig `yaml:"collections" validate:"required,min=1,dive"`
	Optimizer             OptimizerConfig    `yaml:"optimizer"`
	Ledger                Database           `yaml:"ledger"`
	Port                  int                `yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// AssetsPath returns the directory images are downloaded to and optimized in
func (c *ServiceConfig) AssetsPath() string {
	return filepath.Join(c.BuildDir, c.AssetsDir)
}

// Collection returns the collection with the given name
func (c *ServiceConfig) Collection(name string) (CollectionConfig, bool) {
	for _, collection := range c.Collections {
		if collection.Name == name {
			return collection, true
		}
	}
	return CollectionConfig{}, false
}

// DefaultConfig returns the built-in configuration used when no file exists
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		BuildDir:              "public",
		AssetsDir:             "assets",
		LogLevel:              "info",
		SequentialCollections: true,
		PageDelay:             time.Second,
		Collections: []CollectionConfig{
			{
				Name:          "feed",
				ServiceDomain: "sto",
				APIKeyEnv:     "sto",
				Endpoints:     []string{"news", "events"},
				ImageField:    "thumbnail.url",
			},
			{
				Name:          "affiliate",
				ServiceDomain: "stoaffiliatesinfo",
				APIKeyEnv:     "stoaffiliatesinfo",
				Endpoints:     []string{"affiliates"},
				ImageField:    "icon.url",
			},
		},
		Optimizer: OptimizerConfig{
			Commands: []CommandConfig{
				{Name: "ResizeCommand", Params: map[string]any{"width": 200, "height": 200, "fit": "outside"}},
			},
			Formats: []CommandConfig{
				{Name: "WebpEncoderCommand", Params: map[string]any{"quality": 50}},
				{Name: "AvifEncoderCommand", Params: map[string]any{"quality": 50}},
			},
		},
		Ledger: Database{
			Type:             "sqlite",
			ConnectionString: ":memory:",
		},
		Port: 8080,
	}
}

// LoadConfig loads configuration from the specified YAML file on top of the
// defaults and resolves API keys from the environment
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	config := DefaultConfig()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	return finalizeConfig(config)
}

// LoadConfigOrDefault behaves like LoadConfig but falls back to DefaultConfig
// when the file does not exist
func LoadConfigOrDefault(configPath string) (*ServiceConfig, error) {
	config, err := LoadConfig(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("config file not found, using defaults", "path", configPath)
		return finalizeConfig(DefaultConfig())
	}
	return config, err
}

func finalizeConfig(config *ServiceConfig) (*ServiceConfig, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Validate collections
	if err := validateCollections(config.Collections); err != nil {
		return nil, fmt.Errorf("invalid collection configuration: %w", err)
	}

	// Validate commands
	if err := validateCommands(config.Optimizer.Commands); err != nil {
		return nil, fmt.Errorf("invalid optimizer command configuration: %w", err)
	}
	if err := validateCommands(config.Optimizer.Formats); err != nil {
		return nil, fmt.Errorf("invalid optimizer format configuration: %w", err)
	}

	resolveAPIKeys(config.Collections)
	return config, nil
}

// validateCollections ensures collection names are unique and no two
// endpoints write the same JSON file
func validateCollections(collections []CollectionConfig) error {
	seenNames := make(map[string]bool)
	seenEndpoints := make(map[string]string)

	for _, collection := range collections {
		if seenNames[collection.Name] {
			return fmt.Errorf("duplicate collection name: %s", collection.Name)
		}
		seenNames[collection.Name] = true

		for _, endpoint := range collection.Endpoints {
			if strings.ContainsAny(endpoint, `/\`) || endpoint == "." || endpoint == ".." {
				return fmt.Errorf("collection %s: invalid endpoint name %q", collection.Name, endpoint)
			}
			if owner, exists := seenEndpoints[endpoint]; exists {
				return fmt.Errorf("endpoint %s is configured in collections %s and %s", endpoint, owner, collection.Name)
			}
			seenEndpoints[endpoint] = collection.Name
		}
	}

	return nil
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		// Validate name is not empty
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}

		// Validate name is unique
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true
	}

	return nil
}

func resolveAPIKeys(collections []CollectionConfig) {
	for i := range collections {
		collections[i].APIKey = os.Getenv(collections[i].APIKeyEnv)
		if collections[i].APIKey == "" {
			slog.Warn("API key not set; requests of this collection will fail",
				"collection", collections[i].Name,
				"env", collections[i].APIKeyEnv)
		}
	}
}

// ParseLogLevel maps a configured level to a slog level, defaulting to info
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
