package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Server configuration
	Server struct {
		// Port the HTTP API listens on
		Port int `env:"SERVER_PORT" envDefault:"5250"`
	}

	// Database configuration
	Database struct {
		// Path to the sqlite database file
		Path string `env:"DATABASE_PATH" envDefault:"database/homematch.db"`
	}

	// DecisionProcessing configuration
	DecisionProcessing struct {
		// Buffer size of the in-memory decision queue
		QueueSize int `env:"DECISION_QUEUE_SIZE" envDefault:"100"`

		// Maximum number of retries for failed decisions
		MaxRetries int `env:"DECISION_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"DECISION_RETRY_DELAY" envDefault:"5"`
	}

	// Scheduler configuration
	Scheduler struct {
		// Interval between offer status sweeps in seconds
		SweepInterval int `env:"SWEEP_INTERVAL" envDefault:"60"`
	}

	// Telegram notification configuration
	Telegram struct {
		IsEnabled bool   `env:"TELEGRAM_ENABLED" envDefault:"false"`
		BotToken  string `env:"TELEGRAM_BOT_TOKEN"`
		ChatID    string `env:"TELEGRAM_CHAT_ID"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
