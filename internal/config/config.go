package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN       string
	MongoURI      string
	RedisAddr     string
	RabbitURL     string
	HTTPAddr      string
	HoldTTL       time.Duration
	SweepInterval time.Duration
	PlaceCacheTTL time.Duration
	OTLPEndpoint  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	holdTTL, _ := time.ParseDuration(os.Getenv("HOLD_TTL"))
	if holdTTL == 0 {
		holdTTL = 5 * time.Minute
	}

	sweepInterval, _ := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if sweepInterval == 0 {
		sweepInterval = time.Minute
	}

	placeCacheTTL, _ := time.ParseDuration(os.Getenv("PLACE_CACHE_TTL"))
	if placeCacheTTL == 0 {
		placeCacheTTL = 10 * time.Minute
	}

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	return &Config{
		CRDBDSN:       os.Getenv("CRDB_DSN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RabbitURL:     os.Getenv("RABBIT_URL"),
		HTTPAddr:      httpAddr,
		HoldTTL:       holdTTL,
		SweepInterval: sweepInterval,
		PlaceCacheTTL: placeCacheTTL,
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
