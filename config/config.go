// Package config loads the worker configuration from the environment,
// with optional .env overlays selected by APP_ENV.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	godotenv "github.com/joho/godotenv"
)

type Config struct {
	RabbitMqURL string
	DatabaseDSN string

	AwsBucketName string
	AwsRegion     string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	// PublicBaseURL prefixes every stored object key to form the URL
	// written onto media assets.
	PublicBaseURL string

	// StagingDir is where the submission path leaves uploaded files
	// until the workers ship them to the blob store.
	StagingDir string

	// MaxRetry bounds application-level upload retries; the attempt with
	// retryCount == MaxRetry is the last one.
	MaxRetry int
	// DeliveryLimit is the broker-side redelivery cap on the quorum
	// queues (the second line of defense).
	DeliveryLimit int

	// MaxImageDim downscales images whose longest side exceeds it.
	// 0 disables normalization.
	MaxImageDim int

	PendingWorkers int
	OutcomeWorkers int

	OpsAddr string
}

// Load reads the environment, applying .env overlays the same way the
// rest of the platform does: APP_ENV selects .env.<APP_ENV>, falling back
// to .env, falling back to the ambient environment.
func Load() (*Config, error) {
	switch env := os.Getenv("APP_ENV"); env {
	case "":
		if err := godotenv.Overload(".env"); err == nil {
			log.Println("Loaded .env")
		}
	default:
		fname := ".env." + env
		if err := godotenv.Overload(fname); err == nil {
			log.Printf("Loaded %s", fname)
		} else if err := godotenv.Overload(".env"); err == nil {
			log.Println("Loaded .env")
		}
	}

	cfg := &Config{
		RabbitMqURL:   os.Getenv("RABBITMQ_URL"),
		DatabaseDSN:   os.Getenv("DATABASE_URL"),
		AwsBucketName: os.Getenv("AWS_BUCKET_NAME"),
		AwsRegion:     os.Getenv("AWS_REGION"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3AccessKey:   os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("S3_SECRET_KEY"),
		PublicBaseURL: os.Getenv("MEDIA_PUBLIC_BASE_URL"),
		StagingDir:    os.Getenv("STAGING_DIR"),
		OpsAddr:       envOrDefault("OPS_ADDR", ":9090"),
	}

	var err error
	if cfg.MaxRetry, err = envInt("MAX_RETRY", 3); err != nil {
		return nil, err
	}
	if cfg.DeliveryLimit, err = envInt("DELIVERY_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.MaxImageDim, err = envInt("MAX_IMAGE_DIM", 0); err != nil {
		return nil, err
	}
	if cfg.PendingWorkers, err = envInt("PENDING_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.OutcomeWorkers, err = envInt("OUTCOME_WORKERS", 2); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	missing := []struct {
		name, val string
	}{
		{"RABBITMQ_URL", c.RabbitMqURL},
		{"DATABASE_URL", c.DatabaseDSN},
		{"AWS_BUCKET_NAME", c.AwsBucketName},
		{"MEDIA_PUBLIC_BASE_URL", c.PublicBaseURL},
		{"STAGING_DIR", c.StagingDir},
	}
	for _, m := range missing {
		if m.val == "" {
			return fmt.Errorf("%s is missing", m.name)
		}
	}
	if c.MaxRetry < 0 {
		return fmt.Errorf("MAX_RETRY must be >= 0, got %d", c.MaxRetry)
	}
	if c.DeliveryLimit < 1 {
		return fmt.Errorf("DELIVERY_LIMIT must be >= 1, got %d", c.DeliveryLimit)
	}
	return nil
}

func envOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, v)
	}
	return n, nil
}
