package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                 string
	AllowedOrigin        string
	BackendBaseURL       string
	BackendToken         string
	ShopID               int64
	EmployeeID           int64
	DefaultGroupID       int64
	ForAllShops          bool
	AllowOutOfStockSales bool
	SupervisorPIN        string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	SnapshotTTLHours     int
	DatabaseURL          string
}

func Load() Config {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	snapshotTTL, err := strconv.Atoi(getEnv("SNAPSHOT_TTL_HOURS", "12"))
	if err != nil || snapshotTTL < 1 {
		snapshotTTL = 12
	}

	cfg := Config{
		Port:                 getEnv("PORT", "8090"),
		AllowedOrigin:        getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		BackendBaseURL:       strings.TrimSpace(os.Getenv("BACKEND_BASE_URL")),
		BackendToken:         strings.TrimSpace(os.Getenv("BACKEND_TOKEN")),
		ShopID:               getEnvInt64("SHOP_ID", 1),
		EmployeeID:           getEnvInt64("EMPLOYEE_ID", 0),
		DefaultGroupID:       getEnvInt64("DEFAULT_GROUP_ID", 1),
		ForAllShops:          getEnvBool("FOR_ALL_SHOPS", false),
		AllowOutOfStockSales: getEnvBool("ALLOW_OUT_OF_STOCK_SALES", false),
		SupervisorPIN:        strings.TrimSpace(os.Getenv("SUPERVISOR_PIN")),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              redisDB,
		SnapshotTTLHours:     snapshotTTL,
		DatabaseURL:          os.Getenv("DATABASE_URL"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt64(key string, fallback int64) int64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
