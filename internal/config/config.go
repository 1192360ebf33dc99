package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDynamoDB = "dynamodb"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Store    StoreConfig
	DynamoDB DynamoDBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	OTP      OTPConfig
	Twilio   TwilioConfig
	OCR      OCRConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
	MaxUploadBytes int64
}

type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig selects the backing store for each repository.
type StoreConfig struct {
	OTP       string
	Candidate string
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey          string
	VerificationExpiry time.Duration
}

type OTPConfig struct {
	Expiry     time.Duration
	BcryptCost int
	LogCodes   bool
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	FromNumber  string
	CountryCode string
}

// Enabled reports whether all credentials needed to send SMS are present.
func (c TwilioConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

const (
	OCREngineHTTP      = "http"
	OCREngineTesseract = "tesseract"
)

type OCRConfig struct {
	Engine   string
	Endpoint string
	Language string
	Timeout  time.Duration
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			Env:            v.GetString("APP_ENV"),
			ReadTimeout:    v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Store: StoreConfig{
			OTP:       strings.ToLower(v.GetString("OTP_STORE")),
			Candidate: strings.ToLower(v.GetString("CANDIDATE_STORE")),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  v.GetString("DYNAMODB_ENDPOINT"),
			Region:    v.GetString("DYNAMODB_REGION"),
			TableName: v.GetString("DYNAMODB_TABLE_NAME"),
		},
		Redis: RedisConfig{
			Endpoint: v.GetString("REDIS_ENDPOINT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			SecretKey:          v.GetString("JWT_SECRET_KEY"),
			VerificationExpiry: v.GetDuration("JWT_VERIFICATION_EXPIRY"),
		},
		OTP: OTPConfig{
			Expiry:     v.GetDuration("OTP_EXPIRY"),
			BcryptCost: v.GetInt("OTP_BCRYPT_COST"),
			LogCodes:   v.GetBool("OTP_LOG_CODES"),
		},
		Twilio: TwilioConfig{
			AccountSID:  v.GetString("TWILIO_ACCOUNT_SID"),
			AuthToken:   v.GetString("TWILIO_AUTH_TOKEN"),
			FromNumber:  v.GetString("TWILIO_PHONE_NUMBER"),
			CountryCode: v.GetString("SMS_COUNTRY_CODE"),
		},
		OCR: OCRConfig{
			Engine:   strings.ToLower(v.GetString("OCR_ENGINE")),
			Endpoint: v.GetString("OCR_ENDPOINT"),
			Language: v.GetString("OCR_LANGUAGE"),
			Timeout:  v.GetDuration("OCR_TIMEOUT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "5000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTP_STORE", StoreDynamoDB)
	v.SetDefault("CANDIDATE_STORE", StoreDynamoDB)
	v.SetDefault("DYNAMODB_ENDPOINT", "")
	v.SetDefault("DYNAMODB_REGION", "ap-south-1")
	v.SetDefault("DYNAMODB_TABLE_NAME", "EnrollmentTable")
	v.SetDefault("REDIS_ENDPOINT", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET_KEY", "")
	v.SetDefault("JWT_VERIFICATION_EXPIRY", 30*time.Minute)
	v.SetDefault("OTP_EXPIRY", 5*time.Minute)
	v.SetDefault("OTP_BCRYPT_COST", 10)
	v.SetDefault("OTP_LOG_CODES", false)
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_PHONE_NUMBER", "")
	v.SetDefault("SMS_COUNTRY_CODE", "+91")
	v.SetDefault("OCR_ENGINE", OCREngineHTTP)
	v.SetDefault("OCR_ENDPOINT", "http://localhost:8884/ocr")
	v.SetDefault("OCR_LANGUAGE", "eng")
	v.SetDefault("OCR_TIMEOUT", 60*time.Second)
}

func (c *Config) validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	switch c.Store.OTP {
	case StoreDynamoDB, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("OTP_STORE must be one of dynamodb, redis, memory (got %q)", c.Store.OTP)
	}

	switch c.Store.Candidate {
	case StoreDynamoDB, StoreMemory:
	default:
		return fmt.Errorf("CANDIDATE_STORE must be one of dynamodb, memory (got %q)", c.Store.Candidate)
	}

	switch c.OCR.Engine {
	case OCREngineHTTP, OCREngineTesseract:
	default:
		return fmt.Errorf("OCR_ENGINE must be one of http, tesseract (got %q)", c.OCR.Engine)
	}

	if c.OTP.Expiry <= 0 {
		return fmt.Errorf("OTP_EXPIRY must be positive")
	}

	if c.OTP.LogCodes && c.Server.Env == "production" {
		return fmt.Errorf("OTP_LOG_CODES must not be true when APP_ENV=production")
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
