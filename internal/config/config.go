package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Optional integrations (Redis, RabbitMQ, webhook
// mode) are empty strings when not configured.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Token        string // Telegram bot token
	AdminChatID  int64  // chat that receives admin notifications and commands
	Port         string // HTTP port for the health/webhook server
	PublicURL    string // externally reachable base URL; empty means long polling
	DBPath       string // path to the SQLite database file
	BackupDir    string // directory where /backup snapshots are written
	RabbitURL    string // AMQP URL; empty disables event publishing
	FlowTTLSec   int64  // seconds before an abandoned wizard expires
	KeepaliveURL string // URL pinged periodically to keep the host awake; empty disables
}

// Load reads configuration from the environment, after merging a local .env
// file when one exists. Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Env:          getenv("APP_ENV", "dev"),
		Token:        must("TELEGRAM_BOT_TOKEN"),
		AdminChatID:  mustInt64("ADMIN_CHAT_ID"),
		Port:         getenv("APP_PORT", "8080"),
		PublicURL:    os.Getenv("PUBLIC_URL"),
		DBPath:       getenv("DB_PATH", "data/crazyjump.db"),
		BackupDir:    getenv("BACKUP_DIR", "backups"),
		RabbitURL:    os.Getenv("RABBITMQ_URL"),
		FlowTTLSec:   int64(envInt("FLOW_TTL_SEC", 1800)),
		KeepaliveURL: os.Getenv("KEEPALIVE_URL"),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt64 is like must() but converts the retrieved string into an int64.
func mustInt64(key string) int64 {
	s := must(key)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}
