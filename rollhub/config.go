package rollhub

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log    LogConfig    `toml:"log"`
	Server ServerConfig `toml:"server"`
	DB     DBConfig     `toml:"db"`
	Auth   AuthConfig   `toml:"auth"`
	Spaces struct {
		Key      string `toml:"key"`
		Secret   string `toml:"secret"`
		Region   string `toml:"region"`
		Bucket   string `toml:"bucket"`
		ItemRoot string `toml:"itemroot"`
	} `toml:"spaces"`
	Notify NotifyConfig `toml:"notify"`
}

// LogConfig holds the minimum severity the handler emits. slog levels are
// plain integers: -4 debug, 0 info, 4 warn, 8 error.
type LogConfig struct {
	Level slog.Level `toml:"level"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
	// Local sqlite file backing the catalog snapshot cache.
	SnapshotPath string `toml:"snapshot_path"`
}

// AuthConfig configures the black-box credential verifier. StaticTokens maps
// bearer tokens to identity references and is only meant for development.
type AuthConfig struct {
	StaticTokens map[string]string `toml:"static_tokens"`
}

type NotifyConfig struct {
	GlobalRollWebhook string `toml:"global_roll_webhook"`
	AdminLogWebhook   string `toml:"admin_log_webhook"`
}
