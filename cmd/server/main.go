package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dbskills/enrollment/internal/config"
	"github.com/dbskills/enrollment/internal/handlers"
	"github.com/dbskills/enrollment/internal/middleware"
	"github.com/dbskills/enrollment/internal/ocr"
	"github.com/dbskills/enrollment/internal/repository"
	"github.com/dbskills/enrollment/internal/service"
	"github.com/dbskills/enrollment/internal/sms"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogger(logger, &cfg.Log)

	var dynamoClient *dynamodb.Client
	if cfg.Store.OTP == config.StoreDynamoDB || cfg.Store.Candidate == config.StoreDynamoDB {
		dynamoClient, err = initDynamoDB(cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize DynamoDB")
		}
	}

	var redisClient *redis.Client
	if cfg.Store.OTP == config.StoreRedis {
		redisClient, err = initRedis(cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize Redis")
		}
		defer redisClient.Close()
	}

	// Initialize repositories
	var otpRepo repository.OTPRepository
	switch cfg.Store.OTP {
	case config.StoreDynamoDB:
		otpRepo = repository.NewDynamoOTPRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	case config.StoreRedis:
		otpRepo = repository.NewRedisOTPRepository(redisClient, logger)
	default:
		otpRepo = repository.NewMemoryOTPRepository()
	}

	var candidateRepo repository.CandidateRepository
	switch cfg.Store.Candidate {
	case config.StoreDynamoDB:
		candidateRepo = repository.NewDynamoCandidateRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	default:
		candidateRepo = repository.NewMemoryCandidateRepository()
	}

	logger.WithFields(logrus.Fields{
		"otp_store":       cfg.Store.OTP,
		"candidate_store": cfg.Store.Candidate,
	}).Info("Repositories initialized")

	// Initialize services
	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	sender := sms.NewSender(&cfg.Twilio, logger)
	otpService := service.NewOTPService(otpRepo, sender, &cfg.OTP, logger)
	candidateService := service.NewCandidateService(candidateRepo, logger)
	recognizer, err := ocr.New(&cfg.OCR, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OCR engine")
	}

	otpHandlers := handlers.NewOTPHandlers(otpService, jwtService, logger)
	candidateHandlers := handlers.NewCandidateHandlers(candidateService, recognizer, cfg.Server.MaxUploadBytes, logger)
	authMiddleware := middleware.NewAuthMiddleware(jwtService, logger)

	router := handlers.NewRouter(otpHandlers, candidateHandlers, authMiddleware, cfg.Server.AllowedOrigins, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port": cfg.Server.Port,
			"env":  cfg.Server.Env,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func configureLogger(logger *logrus.Logger, cfg *config.LogConfig) {
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		return
	}
	logger.SetLevel(level)
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.WithField("table", cfg.DynamoDB.TableName).Info("DynamoDB client initialized")
	return client, nil
}

func initRedis(cfg *config.Config, logger *logrus.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis client initialized")
	return client, nil
}
