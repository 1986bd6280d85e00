package configs

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is read once at startup and passed down explicitly.
type AppConfig struct {
	Env  string
	Port string

	// Database
	DBDriver           string
	DatabaseURL        string
	DBUser             string
	DBPassword         string
	DBHost             string
	DBPort             string
	DBName             string
	DBSSLMode          string
	SQLitePath         string
	StatementTimeout   time.Duration
	SlowQueryThreshold time.Duration
	AutoMigrate        bool
	SeedDir            string

	// Auth
	JWTSecret string

	// Ledger / payments
	Currency          string
	PublicBaseURL     string
	GatewayTimeout    time.Duration
	SessionTTL        time.Duration
	FeeWorkers        int
	ExpirySweepSpec   string
	RequestTimeout    time.Duration
	CORSAllowOrigins  string
	MidtransServerKey string
	MidtransUseProd   bool

	// Receipt notifications (optional)
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// =======================
// ENV LOADER
// =======================
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") != "" {
		log.Println("🚀 Running in Railway, using system ENV")
		return
	}
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ no .env file found, using system ENV")
	} else {
		log.Println("✅ .env loaded")
	}
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if (!exists || strings.TrimSpace(value) == "") && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return strings.TrimSpace(value)
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := GetEnv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("⚠️ %s=%q is not a duration, using %s", key, v, def)
	}
	return def
}

func getInt(key string, def int) int {
	if v := GetEnv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("⚠️ %s=%q is not an integer, using %d", key, v, def)
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := GetEnv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Load reads the environment (after LoadEnv) into an AppConfig.
func Load() *AppConfig {
	cfg := &AppConfig{
		Env:  GetEnv("APP_ENV", "development"),
		Port: GetEnv("PORT", "3000"),

		DBDriver:           GetEnv("DB_DRIVER", "postgres"),
		DatabaseURL:        GetEnv("DATABASE_URL"),
		DBUser:             GetEnv("DB_USER"),
		DBPassword:         GetEnv("DB_PASSWORD"),
		DBHost:             GetEnv("DB_HOST", "localhost"),
		DBPort:             GetEnv("DB_PORT", "5432"),
		DBName:             GetEnv("DB_NAME"),
		DBSSLMode:          GetEnv("DB_SSLMODE", "require"),
		SQLitePath:         GetEnv("SQLITE_PATH", "schoolfinance.db"),
		StatementTimeout:   getDuration("DB_STATEMENT_TIMEOUT", 3*time.Second),
		SlowQueryThreshold: getDuration("DB_SLOW_THRESHOLD", 200*time.Millisecond),
		AutoMigrate:        getBool("DB_AUTO_MIGRATE", true),
		SeedDir:            GetEnv("SEED_DIR"),

		JWTSecret: GetEnv("JWT_SECRET"),

		Currency:          strings.ToUpper(GetEnv("LEDGER_CURRENCY", "IDR")),
		PublicBaseURL:     strings.TrimRight(GetEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		GatewayTimeout:    getDuration("GATEWAY_TIMEOUT", 15*time.Second),
		SessionTTL:        getDuration("PAYMENT_SESSION_TTL", 60*time.Minute),
		FeeWorkers:        getInt("FEE_APPLY_WORKERS", 8),
		ExpirySweepSpec:   GetEnv("EXPIRY_SWEEP_SPEC", "@every 5m"),
		RequestTimeout:    getDuration("REQUEST_TIMEOUT", 20*time.Second),
		CORSAllowOrigins:  GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173"),
		MidtransServerKey: GetEnv("MIDTRANS_SERVER_KEY"),
		MidtransUseProd:   getBool("MIDTRANS_USE_PROD", false),

		SMTPHost:     GetEnv("SMTP_HOST"),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPUsername: GetEnv("SMTP_USERNAME"),
		SMTPPassword: GetEnv("SMTP_PASSWORD"),
		SMTPFrom:     GetEnv("SMTP_FROM"),
	}

	if cfg.JWTSecret == "" {
		log.Println("❌ JWT_SECRET is not set!")
	}
	if cfg.MidtransServerKey == "" {
		log.Println("⚠️ MIDTRANS_SERVER_KEY is not set, midtrans payments will be rejected")
	}
	return cfg
}

func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
