package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	API struct {
		BaseURL string        `mapstructure:"baseurl"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"api"`
	Realtime struct {
		URL                 string        `mapstructure:"url"`
		ReconnectMaxElapsed time.Duration `mapstructure:"reconnectmaxelapsed"`
	} `mapstructure:"realtime"`
	Editor struct {
		SaveDebounce time.Duration `mapstructure:"savedebounce"`
		TypingWindow time.Duration `mapstructure:"typingwindow"`
	} `mapstructure:"editor"`
	Auth struct {
		Token    string        `mapstructure:"token"`
		Secret   string        `mapstructure:"secret"`
		TokenTTL time.Duration `mapstructure:"tokenttl"`
	} `mapstructure:"auth"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
}

var DefaultPaths = []string{"./backend/config", "./config", "."}

// Load reads collabConfig.yaml from the first matching path, then COLLAB_* environment overrides.
// A .env file in the working directory is loaded first. A missing config file leaves the defaults.
func Load(paths ...string) (*Config, error) {
	_ = godotenv.Load()
	if len(paths) == 0 {
		paths = DefaultPaths
	}

	v := viper.New()
	v.SetConfigName("collabConfig")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("COLLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 8082)
	v.SetDefault("api.baseurl", "http://localhost:8082/api")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("realtime.url", "ws://localhost:8082/collab/ws")
	v.SetDefault("realtime.reconnectmaxelapsed", "5m")
	v.SetDefault("editor.savedebounce", "1s")
	v.SetDefault("editor.typingwindow", "2s")
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.secret", "dev-secret")
	v.SetDefault("auth.tokenttl", "24h")
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.password", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "doc-events")
}
