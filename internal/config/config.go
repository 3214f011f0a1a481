package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	MLService struct {
		URL string `yaml:"url"`
	} `yaml:"ml_service"`
	Detection struct {
		Threshold float64 `yaml:"threshold"`
	} `yaml:"detection"`
	Training struct {
		BaseDataset string `yaml:"base_dataset"`
		Script      string `yaml:"script"`
		Python      string `yaml:"python"`
		WorkDir     string `yaml:"work_dir"`
		EventBuffer int    `yaml:"event_buffer"`
	} `yaml:"training"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Notifications struct {
		Enabled          bool   `yaml:"enabled"`
		TelegramBotToken string `yaml:"telegram_bot_token"`
		ChatID           int64  `yaml:"chat_id"`
	} `yaml:"notifications"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

// LoadConfig reads configuration from the specified YAML file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if config.Detection.Threshold == 0 {
		config.Detection.Threshold = 0.8
	}
	if config.Training.EventBuffer == 0 {
		config.Training.EventBuffer = 256
	}
	if config.Auth.TokenTTLHours == 0 {
		config.Auth.TokenTTLHours = 24
	}

	return config, nil
}
