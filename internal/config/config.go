package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Model  ModelConfig  `json:"model" yaml:"model"`
	Upload UploadConfig `json:"upload" yaml:"upload"`
	Device DeviceConfig `json:"device" yaml:"device"`
	Server ServerConfig `json:"server" yaml:"server"`
}

// ModelConfig selects the inference backend and the label list
type ModelConfig struct {
	// Backend is onnx, ollama or llamacpp
	Backend      string `json:"backend" yaml:"backend"`
	Path         string `json:"path" yaml:"path"`
	MetadataPath string `json:"metadata_path" yaml:"metadata_path"`
	LabelsPath   string `json:"labels_path" yaml:"labels_path"`
	LibraryPath  string `json:"library_path" yaml:"library_path"`
	ImageSize    int    `json:"image_size" yaml:"image_size"`
	Version      string `json:"version" yaml:"version"`

	VisionURL   string `json:"vision_url" yaml:"vision_url"`
	VisionModel string `json:"vision_model" yaml:"vision_model"`
}

// UploadConfig holds the record store client settings
type UploadConfig struct {
	ServerURL      string `json:"server_url" yaml:"server_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	OutboxPath     string `json:"outbox_path" yaml:"outbox_path"`
	UserID         string `json:"user_id" yaml:"user_id"`
}

// DeviceConfig overrides the device info attached to records
type DeviceConfig struct {
	Model      string `json:"model" yaml:"model"`
	OSVersion  string `json:"os_version" yaml:"os_version"`
	AppVersion string `json:"app_version" yaml:"app_version"`
}

// ServerConfig holds the record store server settings
type ServerConfig struct {
	Addr        string `json:"addr" yaml:"addr"`
	DatabaseURL string `json:"database_url" yaml:"database_url"`
	ImageDir    string `json:"image_dir" yaml:"image_dir"`
	PublicURL   string `json:"public_url" yaml:"public_url"`
	ListLimit   int    `json:"list_limit" yaml:"list_limit"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Backend:     "onnx",
			Path:        "models/coconut_disease_model.onnx",
			LabelsPath:  "models/labels.txt",
			ImageSize:   224,
			Version:     "enhanced_v1.0",
			VisionURL:   "http://localhost:11434",
			VisionModel: "llava",
		},
		Upload: UploadConfig{
			ServerURL:      "http://localhost:8090",
			TimeoutSeconds: 30,
			OutboxPath:     filepath.Join(defaultDataDir(), "outbox.json"),
		},
		Device: DeviceConfig{
			AppVersion: "1.0",
		},
		Server: ServerConfig{
			Addr:      ":8090",
			ImageDir:  "./images",
			ListLimit: 50,
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file. Missing
// fields keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration as JSON, or YAML for .yaml/.yml names
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads envFile if it exists, then applies PALMSCAN_* and
// POSTGRES_* overrides
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	setString(&c.Model.Backend, "PALMSCAN_BACKEND")
	setString(&c.Model.Path, "PALMSCAN_MODEL")
	setString(&c.Model.MetadataPath, "PALMSCAN_METADATA")
	setString(&c.Model.LabelsPath, "PALMSCAN_LABELS")
	setString(&c.Model.LibraryPath, "ONNXRUNTIME_LIB")
	setString(&c.Model.VisionURL, "PALMSCAN_VISION_URL")
	setString(&c.Model.VisionModel, "PALMSCAN_VISION_MODEL")
	setString(&c.Upload.ServerURL, "PALMSCAN_SERVER_URL")
	setString(&c.Upload.OutboxPath, "PALMSCAN_OUTBOX")
	setString(&c.Upload.UserID, "PALMSCAN_USER_ID")
	setString(&c.Server.Addr, "PALMSCAN_ADDR")
	setString(&c.Server.ImageDir, "PALMSCAN_IMAGE_DIR")
	setString(&c.Server.PublicURL, "PALMSCAN_PUBLIC_URL")
	setString(&c.Server.DatabaseURL, "DATABASE_URL")

	if v := os.Getenv("PALMSCAN_UPLOAD_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PALMSCAN_UPLOAD_TIMEOUT: %w", err)
		}
		c.Upload.TimeoutSeconds = secs
	}

	if c.Server.DatabaseURL == "" {
		c.Server.DatabaseURL = PostgresURLFromEnv()
	}
	return nil
}

// PostgresURLFromEnv builds a connection string from POSTGRES_HOST, _USER,
// _PASSWORD, _DB and _PORT. It returns "" when POSTGRES_HOST is unset.
func PostgresURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Model.Backend {
	case "onnx":
		if c.Model.Path == "" {
			return fmt.Errorf("model.path is required for the onnx backend")
		}
	case "ollama", "llamacpp":
		if c.Model.VisionURL == "" {
			return fmt.Errorf("model.vision_url is required for the %s backend", c.Model.Backend)
		}
		if c.Model.VisionModel == "" && c.Model.Backend == "ollama" {
			return fmt.Errorf("model.vision_model is required for the ollama backend")
		}
	default:
		return fmt.Errorf("model.backend must be onnx, ollama or llamacpp, got %q", c.Model.Backend)
	}

	if c.Model.LabelsPath == "" && c.Model.MetadataPath == "" {
		return fmt.Errorf("model.labels_path or model.metadata_path is required")
	}

	if c.Model.ImageSize < 1 {
		return fmt.Errorf("model.image_size must be positive")
	}

	if c.Upload.TimeoutSeconds < 1 {
		return fmt.Errorf("upload.timeout_seconds must be positive")
	}

	if c.Server.ListLimit < 1 {
		return fmt.Errorf("server.list_limit must be positive")
	}

	return nil
}

// UploadTimeout returns the upload timeout as a duration
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Upload.TimeoutSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "palmscan", "config.json")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "palmscan")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
