package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Bind            string        `mapstructure:"bind"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		EnqueueRate     int           `mapstructure:"enqueue_rate"`
	} `mapstructure:"server"`

	Metrics struct {
		Bind string `mapstructure:"bind"`
		Path string `mapstructure:"path"`
	} `mapstructure:"metrics"`

	Worker struct {
		Queues          []string      `mapstructure:"queues"`
		Backoff         time.Duration `mapstructure:"backoff"`
		HandlePerSecond int           `mapstructure:"handle_per_second"`
	} `mapstructure:"worker"`

	Queue struct {
		Type string `mapstructure:"type"`
	} `mapstructure:"queue"`

	Redis struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"redis"`

	Db struct {
		ConnectionString string `mapstructure:"connection_string"`
		MaxConnections   int    `mapstructure:"max_connections"`
	} `mapstructure:"db"`

	LevelDb struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"leveldb"`

	Sqlite struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`

	Forward struct {
		RemoteUrl      string        `mapstructure:"remote_url"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		NumClients     int           `mapstructure:"num_clients"`
	} `mapstructure:"forward"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
