// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ai-navigator/club-bot/internal/models"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string  `yaml:"env" env-default:"local"`
	TelegramToken           string  `yaml:"telegram_token" env:"TELEGRAM_TOKEN"`
	OperatorIDs             []int64 `yaml:"operator_ids"`
	StorageConnectionString string  `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string  `yaml:"migrations_path" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	YooKassa                `yaml:"yookassa"`
	HTTPServer              `yaml:"http_server"`
	Plans                   `yaml:"plans"`
	Sweep                   `yaml:"sweep"`
}

// HTTPServer структура для настройки внутреннего ops-сервера
type HTTPServer struct {
	AddressHTTP   string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP   time.Duration `yaml:"timeouthttp" env-default:"5s"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" env-default:"60s"`
	WebhookSecret string        `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// RabbitMQ структура для настройки подключения к брокеру уведомлений
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"rabbitmq_url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"rabbitmq_max_retries" env-default:"10"`
	RabbitMQRetryDelay time.Duration `yaml:"rabbitmq_retry_delay" env-default:"3s"`
}

// YooKassa структура с учётными данными платёжного провайдера
type YooKassa struct {
	ShopID     string        `yaml:"shop_id" env:"YOOKASSA_SHOP_ID"`
	SecretKey  string        `yaml:"secret_key" env:"YOOKASSA_SECRET_KEY"`
	APIURL     string        `yaml:"api_url" env-default:"https://api.yookassa.ru/v3"`
	ReturnURL  string        `yaml:"return_url"`
	APITimeout time.Duration `yaml:"api_timeout" env-default:"10s"`
}

// Plans таблица тарифов: цена в целых рублях и срок доступа в днях.
// Значения по умолчанию совпадают с действующим прайсом клуба.
type Plans struct {
	MonthPrice   int `yaml:"month_price" env-default:"1990"`
	MonthDays    int `yaml:"month_days" env-default:"30"`
	QuarterPrice int `yaml:"quarter_price" env-default:"4990"`
	QuarterDays  int `yaml:"quarter_days" env-default:"90"`
}

// List возвращает таблицу тарифов в порядке возрастания цены.
func (p Plans) List() []models.Plan {
	return []models.Plan{
		{
			Key:          models.SubscriptionMonth,
			Title:        "1 месяц",
			Price:        p.MonthPrice,
			DurationDays: p.MonthDays,
		},
		{
			Key:          models.SubscriptionQuarter,
			Title:        "3 месяца",
			Price:        p.QuarterPrice,
			DurationDays: p.QuarterDays,
		},
	}
}

// Sweep настройки ежедневного прохода продлений
type Sweep struct {
	Interval    time.Duration `yaml:"interval" env-default:"24h"`
	WarningDays int           `yaml:"warning_days" env-default:"3"`
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и падает при любой ошибке
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
