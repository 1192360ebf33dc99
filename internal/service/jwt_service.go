package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/dbskills/enrollment/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const tokenTypeMobileVerified = "mobile_verified"

var ErrInvalidToken = errors.New("invalid token")

// JWTService issues the short-lived token that proves a mobile number passed
// OTP verification. Registration requires it.
type JWTService struct {
	secretKey []byte
	expiry    time.Duration
	logger    *logrus.Logger
	now       func() time.Time
}

func NewJWTService(cfg *config.JWTConfig, logger *logrus.Logger) (*JWTService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &JWTService{
		secretKey: secretKey,
		expiry:    cfg.VerificationExpiry,
		logger:    logger,
		now:       time.Now,
	}, nil
}

type Claims struct {
	Phone string `json:"phone"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

type VerificationToken struct {
	Token     string `json:"verificationToken"`
	ExpiresIn int64  `json:"expiresIn"`
}

func (s *JWTService) IssueVerificationToken(phoneNumber string) (*VerificationToken, error) {
	now := s.now()
	jti := uuid.New().String()

	claims := &Claims{
		Phone: phoneNumber,
		Type:  tokenTypeMobileVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   phoneNumber,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign verification token")
		return nil, fmt.Errorf("failed to sign verification token: %w", err)
	}

	return &VerificationToken{
		Token:     tokenString,
		ExpiresIn: int64(s.expiry.Seconds()),
	}, nil
}

// VerifyToken checks signature, expiry and token type and returns the claims.
func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != tokenTypeMobileVerified {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.Type)
	}

	return claims, nil
}
