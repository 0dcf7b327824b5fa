package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Port                  string
	Env                   string
	StoreBackend          string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	JWTSecret             string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int
	MessageTTLDays        int
	HistoryTTLDays        int
	ContactRequestTTLDays int
	GeoStrict             bool
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// redisDB 允许 0（Redis 默认库），所以不走 getint 的正数约束。
func redisDB() int {
	v, err := strconv.Atoi(getenv("REDIS_DB", "0"))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func Load() Config {
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		Env:                   getenv("APP_ENV", "dev"),
		StoreBackend:          getenv("STORE_BACKEND", "redis"),
		RedisAddr:             getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getenv("REDIS_PASSWORD", ""),
		RedisDB:               redisDB(),
		JWTSecret:             getenv("JWT_SECRET", "dev-secret-change-me"),
		AccessTokenTTLMinutes: getint("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:   getint("REFRESH_TOKEN_TTL_DAYS", 7),
		MessageTTLDays:        getint("MESSAGE_TTL_DAYS", 7),
		HistoryTTLDays:        getint("HISTORY_TTL_DAYS", 30),
		ContactRequestTTLDays: getint("CONTACT_REQUEST_TTL_DAYS", 30),
		GeoStrict:             getenv("GEO_STRICT", "false") == "true",
	}
}

// Validate 在启动时做基本合法性检查，非 dev 环境拒绝默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port is empty")
	}
	if cfg.StoreBackend != "redis" && cfg.StoreBackend != "memory" {
		return errors.New("config: STORE_BACKEND must be redis or memory")
	}
	if cfg.StoreBackend == "redis" && cfg.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR is empty")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("config: default JWT secret outside dev")
	}
	if cfg.HistoryTTLDays < cfg.MessageTTLDays {
		// 索引必须活得比消息体久，否则列表还在、消息已经悬空。
		return errors.New("config: HISTORY_TTL_DAYS must be >= MESSAGE_TTL_DAYS")
	}
	return nil
}
