package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	Env      string `mapstructure:"ENV"`
	OpsPort  string `mapstructure:"OPS_PORT"`
	OpsToken string `mapstructure:"OPS_TOKEN"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Telegram transport.
	BotToken        string  `mapstructure:"BOT_TOKEN"`
	OperatorChatIDs []int64 `mapstructure:"OPERATOR_CHAT_IDS"`
	Timezone        string  `mapstructure:"TIMEZONE"`

	// Mongo / Redis.
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DatabaseName      string `mapstructure:"DATABASE_NAME"`
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisPassword     string `mapstructure:"REDIS_PASSWORD"`
	RedisSessionDB    int    `mapstructure:"REDIS_SESSION_DB"`
	RedisReminderDB   int    `mapstructure:"REDIS_REMINDER_DB"`
	RedisTaskQueueDB  int    `mapstructure:"REDIS_TASK_QUEUE_DB"`
	SessionTTLMinutes int    `mapstructure:"SESSION_TTL_MINUTES"`

	// Payments.
	StripeKey          string `mapstructure:"STRIPE_KEY"`
	SettlementCurrency string `mapstructure:"SETTLEMENT_CURRENCY"`
	PaymentExpiryMins  int    `mapstructure:"PAYMENT_EXPIRY_MINUTES"`

	// Booking policy.
	SlotGranularityMinutes int `mapstructure:"SLOT_GRANULARITY_MINUTES"`
	BufferMinutes          int `mapstructure:"BUFFER_MINUTES"`
	BookingWindowDays      int `mapstructure:"BOOKING_WINDOW_DAYS"`

	// Reminder policy. Intervals are minutes before the appointment start,
	// largest first; the last entry is the confirmation-required interval.
	ReminderIntervalMins    []int `mapstructure:"REMINDER_INTERVAL_MINUTES"`
	ConfirmDeadlineMinutes  int   `mapstructure:"CONFIRM_DEADLINE_MINUTES"`
	ReminderLookaheadHours  int   `mapstructure:"REMINDER_LOOKAHEAD_HOURS"`
	ReminderSendTimeoutSecs int   `mapstructure:"REMINDER_SEND_TIMEOUT_SECONDS"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("ENV", "development")
	viper.SetDefault("OPS_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("TIMEZONE", "UTC")
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "bookline")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_SESSION_DB", 0)
	viper.SetDefault("REDIS_REMINDER_DB", 1)
	viper.SetDefault("REDIS_TASK_QUEUE_DB", 2)
	viper.SetDefault("SESSION_TTL_MINUTES", 30)
	viper.SetDefault("SETTLEMENT_CURRENCY", "usd")
	viper.SetDefault("PAYMENT_EXPIRY_MINUTES", 30)
	viper.SetDefault("SLOT_GRANULARITY_MINUTES", 30)
	viper.SetDefault("BUFFER_MINUTES", 0)
	viper.SetDefault("BOOKING_WINDOW_DAYS", 7)
	viper.SetDefault("REMINDER_INTERVAL_MINUTES", []int{720, 180, 60, 30})
	viper.SetDefault("CONFIRM_DEADLINE_MINUTES", 10)
	viper.SetDefault("REMINDER_LOOKAHEAD_HOURS", 13)
	viper.SetDefault("REMINDER_SEND_TIMEOUT_SECONDS", 5)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// SessionTTL returns the booking session lifetime.
func SessionTTL() time.Duration {
	return time.Duration(AppConfig.SessionTTLMinutes) * time.Minute
}

// ConfirmDeadline returns how long a client has to acknowledge the final reminder.
func ConfirmDeadline() time.Duration {
	return time.Duration(AppConfig.ConfirmDeadlineMinutes) * time.Minute
}

// IsOperator reports whether the given chat belongs to a configured operator.
// Operator identities are always supplied through configuration, never compiled in.
func IsOperator(chatID int64) bool {
	for _, id := range AppConfig.OperatorChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}
