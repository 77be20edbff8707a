package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the complete configuration for the application
type AppConfig struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	ServiceName string          `mapstructure:"service_name"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Sheets      SheetsConfig    `mapstructure:"sheets"`
	Mail        MailConfig      `mapstructure:"mail"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Schedule    ScheduleConfig  `mapstructure:"schedule"`
	Watermark   WatermarkConfig `mapstructure:"watermark"`
	Server      ServerConfig    `mapstructure:"server"`
}

// DatabaseConfig describes the source table. DSN, when set, wins over the
// discrete connection fields.
type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"`
	DSN            string        `mapstructure:"dsn"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Name           string        `mapstructure:"name"`
	Table          string        `mapstructure:"table"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type SheetsConfig struct {
	SpreadsheetID       string `mapstructure:"spreadsheet_id"`
	ServiceAccountEmail string `mapstructure:"service_account_email"`
	PrivateKey          string `mapstructure:"private_key"`
	CredentialsFile     string `mapstructure:"credentials_file"`
	Mode                string `mapstructure:"mode"`
	MaxAttempts         int    `mapstructure:"max_attempts"`
}

type MailConfig struct {
	Transport string `mapstructure:"transport"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	From      string `mapstructure:"from"`
	To        string `mapstructure:"to"`
	Subject   string `mapstructure:"subject"`
	// CredentialsFile is the service account key used by the gmail transport.
	CredentialsFile string `mapstructure:"credentials_file"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ScheduleConfig struct {
	Cron         string        `mapstructure:"cron"`
	Timezone     string        `mapstructure:"timezone"`
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
}

type WatermarkConfig struct {
	Store     string `mapstructure:"store"`
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key"`
	InitTable string `mapstructure:"init_table"`
	Delivery  string `mapstructure:"delivery"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("service_name", "quotelist")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.table", "table_contact")
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("sheets.mode", "replace")
	v.SetDefault("sheets.max_attempts", 1)
	v.SetDefault("mail.transport", "smtp")
	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.subject", "New Items Added to MySQL")
	v.SetDefault("kafka.topic", "quotelist.contacts")
	v.SetDefault("schedule.cron", "*/5 * * * *")
	v.SetDefault("schedule.timezone", "UTC")
	v.SetDefault("schedule.cycle_timeout", time.Duration(0))
	v.SetDefault("watermark.store", "memory")
	v.SetDefault("watermark.path", "watermark.txt")
	v.SetDefault("watermark.redis_key", "quotelist:watermark")
	v.SetDefault("watermark.delivery", "at_most_once")
	v.SetDefault("server.addr", ":8080")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// The second name in each pair is the variable the job has always read.
	v.BindEnv("service_name", "SERVICE_NAME")
	v.BindEnv("environment", "ENVIRONMENT")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("database.host", "DATABASE_HOST", "MYSQL_HOST")
	v.BindEnv("database.port", "DATABASE_PORT", "MYSQL_PORT")
	v.BindEnv("database.user", "DATABASE_USER", "MYSQL_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD", "MYSQL_PASSWORD")
	v.BindEnv("database.name", "DATABASE_NAME", "MYSQL_DATABASE")
	v.BindEnv("database.table", "DATABASE_TABLE")
	v.BindEnv("sheets.spreadsheet_id", "SHEETS_SPREADSHEET_ID", "SPREADSHEET_ID")
	v.BindEnv("sheets.service_account_email", "SHEETS_SERVICE_ACCOUNT_EMAIL", "GOOGLE_SERVICE_ACCOUNT_EMAIL")
	v.BindEnv("sheets.private_key", "SHEETS_PRIVATE_KEY", "GOOGLE_PRIVATE_KEY")
	v.BindEnv("sheets.credentials_file", "SHEETS_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS")
	v.BindEnv("sheets.mode", "SHEETS_MODE")
	v.BindEnv("sheets.max_attempts", "SHEETS_MAX_ATTEMPTS")
	v.BindEnv("mail.transport", "MAIL_TRANSPORT")
	v.BindEnv("mail.host", "MAIL_HOST")
	v.BindEnv("mail.port", "MAIL_PORT")
	v.BindEnv("mail.username", "MAIL_USERNAME", "EMAIL_USER")
	v.BindEnv("mail.password", "MAIL_PASSWORD", "EMAIL_PASS")
	v.BindEnv("mail.from", "MAIL_FROM")
	v.BindEnv("mail.to", "MAIL_TO")
	v.BindEnv("mail.subject", "MAIL_SUBJECT")
	v.BindEnv("mail.credentials_file", "MAIL_CREDENTIALS_FILE")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("schedule.cron", "SCHEDULE_CRON")
	v.BindEnv("schedule.timezone", "SCHEDULE_TIMEZONE")
	v.BindEnv("schedule.cycle_timeout", "SCHEDULE_CYCLE_TIMEOUT")
	v.BindEnv("watermark.store", "WATERMARK_STORE")
	v.BindEnv("watermark.path", "WATERMARK_PATH")
	v.BindEnv("watermark.redis_addr", "WATERMARK_REDIS_ADDR")
	v.BindEnv("watermark.redis_key", "WATERMARK_REDIS_KEY")
	v.BindEnv("watermark.init_table", "WATERMARK_INIT_TABLE")
	v.BindEnv("watermark.delivery", "WATERMARK_DELIVERY")
	v.BindEnv("server.addr", "SERVER_ADDR")

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Brokers arrive as one comma separated string from the environment.
	brokers := v.GetString("kafka.brokers")
	if brokers != "" && (len(config.Kafka.Brokers) == 0 || strings.Contains(brokers, ",")) {
		config.Kafka.Brokers = strings.Split(brokers, ",")
	}

	if config.Mail.From == "" {
		config.Mail.From = config.Mail.Username
	}
	if config.Watermark.InitTable == "" {
		config.Watermark.InitTable = config.Database.Table
	}
	// Private keys pasted into env files carry literal \n sequences.
	config.Sheets.PrivateKey = strings.ReplaceAll(config.Sheets.PrivateKey, `\n`, "\n")

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *AppConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}

	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	switch {
	case c.Database.DSN != "":
	case c.Database.Driver == "sqlite":
		if c.Database.Name == "" {
			return errors.New("database.dsn or database.name is required for sqlite")
		}
	case c.Database.Host == "" || c.Database.Name == "":
		return errors.New("database.dsn or database.host and database.name are required")
	}
	if c.Database.Table == "" {
		return errors.New("database.table is required")
	}

	if c.Sheets.SpreadsheetID == "" {
		return errors.New("sheets.spreadsheet_id is required")
	}
	if c.Sheets.CredentialsFile == "" && (c.Sheets.ServiceAccountEmail == "" || c.Sheets.PrivateKey == "") {
		return errors.New("sheets.credentials_file or sheets.service_account_email and sheets.private_key are required")
	}
	if c.Sheets.Mode != "replace" && c.Sheets.Mode != "upsert" {
		return fmt.Errorf("sheets.mode %q must be replace or upsert", c.Sheets.Mode)
	}
	if c.Sheets.MaxAttempts < 1 {
		return errors.New("sheets.max_attempts must be at least 1")
	}

	switch c.Mail.Transport {
	case "smtp":
		if c.Mail.Host == "" || c.Mail.Username == "" || c.Mail.Password == "" {
			return errors.New("mail.host, mail.username and mail.password are required for smtp")
		}
	case "gmail":
		if c.Mail.CredentialsFile == "" {
			return errors.New("mail.credentials_file is required for gmail")
		}
	default:
		return fmt.Errorf("mail.transport %q must be smtp or gmail", c.Mail.Transport)
	}
	if c.Mail.From == "" {
		return errors.New("mail.from is required")
	}
	if c.Mail.To == "" {
		return errors.New("mail.to is required")
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when kafka.brokers is set")
	}

	if c.Schedule.Cron == "" {
		return errors.New("schedule.cron is required")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}

	switch c.Watermark.Store {
	case "memory":
	case "database":
		if c.Database.Driver != "mysql" && c.Database.Driver != "postgres" {
			return errors.New("watermark.store database requires a mysql or postgres database.driver")
		}
	case "file":
		if c.Watermark.Path == "" {
			return errors.New("watermark.path is required for the file store")
		}
	case "redis":
		if c.Watermark.RedisAddr == "" || c.Watermark.RedisKey == "" {
			return errors.New("watermark.redis_addr and watermark.redis_key are required for the redis store")
		}
	default:
		return fmt.Errorf("watermark.store %q must be memory, file, redis or database", c.Watermark.Store)
	}
	if c.Watermark.Delivery != "at_most_once" && c.Watermark.Delivery != "at_least_once" {
		return fmt.Errorf("watermark.delivery %q must be at_most_once or at_least_once", c.Watermark.Delivery)
	}

	return nil
}
