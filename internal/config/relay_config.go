package config

import (
	"os"

	"github.com/joho/godotenv"
)

// RelayConfig is the subset of configuration the outbox relay binary needs:
// the database to drain and the broker to deliver to.
type RelayConfig struct {
	DatabaseURL     string
	RabbitMQURL     string
	NoticeQueueName string
}

func LoadRelayConfig() *RelayConfig {
	_ = godotenv.Load()

	dbURL := os.Getenv("DB_CONNECTION_STRING")
	if dbURL == "" {
		panic("DB_CONNECTION_STRING environment variable is required")
	}

	rabbitURL := os.Getenv("RABBITMQ_URL")
	if rabbitURL == "" {
		panic("RABBITMQ_URL environment variable is required")
	}

	noticeQueue := os.Getenv("NOTICE_QUEUE_NAME")
	if noticeQueue == "" {
		noticeQueue = "host-notices"
	}

	return &RelayConfig{
		DatabaseURL:     dbURL,
		RabbitMQURL:     rabbitURL,
		NoticeQueueName: noticeQueue,
	}
}
