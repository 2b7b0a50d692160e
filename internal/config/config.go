package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config carries the environment driven settings. Everything has a
// development default so a bare checkout works against sqlite.
type Config struct {
	// "postgres" or "sqlite"
	DBType     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SqlitePath string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers string
	KafkaTopic   string
	KafkaGroup   string

	// SnapshotCodec compresses registration metadata blobs.
	// One of gzip, brotli, lz4, none.
	SnapshotCodec string

	// SpamFlaggedMakeNodePrivate extends the make-public block from
	// confirmed spam to flagged-for-review nodes.
	SpamFlaggedMakeNodePrivate bool

	// AnalyticsMasterKey salts per-node analytics read keys.
	AnalyticsMasterKey string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	return &Config{
		DBType:     getEnv("DB_TYPE", "sqlite"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "osf"),
		SqlitePath: getEnv("SQLITE_PATH", ".db/osf.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "node-tasks"),
		KafkaGroup:   getEnv("KAFKA_GROUP", "osf-worker"),

		SnapshotCodec: getEnv("SNAPSHOT_CODEC", "gzip"),

		SpamFlaggedMakeNodePrivate: getBoolEnv("SPAM_FLAGGED_MAKE_NODE_PRIVATE", false),
		AnalyticsMasterKey:         getEnv("ANALYTICS_MASTER_KEY", ""),
	}
}

func GetDb(cnf *Config) *gorm.DB {
	switch cnf.DBType {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cnf.DBHost, cnf.DBPort, cnf.DBUser, cnf.DBPassword, cnf.DBName)
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			logrus.Fatalf("failed to connect to postgres: %v", err)
		}
		return db
	default:
		if dir := dirOf(cnf.SqlitePath); dir != "" {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				logrus.Fatalf("failed to create db dir: %v", err)
			}
		}
		db, err := gorm.Open(sqlite.Open(cnf.SqlitePath), &gorm.Config{})
		if err != nil {
			logrus.Fatalf("failed to open sqlite db: %v", err)
		}
		return db
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func dirOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return ""
	}
	return path[:i]
}
