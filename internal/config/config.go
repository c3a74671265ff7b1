package config

import (
	"crypto/rsa"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

type Config struct {
	JWTPrivateKey *rsa.PrivateKey
	JWTPublicKey  *rsa.PublicKey

	DatabaseURL   string
	RedisAddress  string
	RedisPassword string
	Port          string

	RabbitMQURL     string
	NoticeQueueName string

	PhotoBucket  string
	PhotoBaseURL string

	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string

	CameraSpoolDir string
	PrintAgentURL  string
	GeocoderURL    string

	AllowedOrigins []string
}

// Load reads the kiosk configuration from the environment, panicking on
// anything required. A local .env is a development convenience; absence
// is fine.
func Load() *Config {
	_ = godotenv.Load()

	privateKey, err := loadPrivateKey(getenv("PRIVATE_KEY_PATH", "/etc/certs/private.pem"))
	if err != nil {
		panic("Failed to load private key: " + err.Error())
	}
	publicKey, err := loadPublicKey(getenv("PUBLIC_KEY_PATH", "/etc/certs/public.pem"))
	if err != nil {
		panic("Failed to load public key: " + err.Error())
	}

	dbURL := os.Getenv("DB_CONNECTION_STRING")
	if dbURL == "" {
		panic("DB_CONNECTION_STRING environment variable is required")
	}

	return &Config{
		JWTPrivateKey:     privateKey,
		JWTPublicKey:      publicKey,
		DatabaseURL:       dbURL,
		RedisAddress:      os.Getenv("REDIS_ADDRESS"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		Port:              getenv("PORT", "8080"),
		RabbitMQURL:       os.Getenv("RABBITMQ_URL"),
		NoticeQueueName:   getenv("NOTICE_QUEUE_NAME", "host-notices"),
		PhotoBucket:       os.Getenv("PHOTO_BUCKET"),
		PhotoBaseURL:      os.Getenv("PHOTO_BASE_URL"),
		OAuthClientID:     os.Getenv("OAUTH_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
		OAuthRedirectURL:  os.Getenv("OAUTH_REDIRECT_URL"),
		CameraSpoolDir:    getenv("CAMERA_SPOOL_DIR", "/var/run/kiosk/frames"),
		PrintAgentURL:     os.Getenv("PRINT_AGENT_URL"),
		GeocoderURL:       os.Getenv("GEOCODER_URL"),
		AllowedOrigins:    []string{"*"},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPrivateKeyFromPEM(keyData)
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(keyData)
}
