package controllers

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobboard/ratelimit"
)

const (
	producerKey  = "producer"
	requestIDKey = "requestID"
)

// RequireBearer accepts either the shared secret itself or an HS256 JWT
// signed with it. A JWT's subject is stored as the request's producer.
func RequireBearer(secret string, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(secret) == "" {
			logger.Errorw("refusing request, secret not configured", "path", c.FullPath())
			RespondErr(c, http.StatusInternalServerError, ErrSecretNotConfigured)
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			RespondErr(c, http.StatusUnauthorized, ErrUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1 {
			c.Next()
			return
		}

		producer, err := verifyJWT(token, secret)
		if err != nil {
			logger.Infow("rejected bearer token", "error", err, "ip", c.ClientIP())
			RespondErr(c, http.StatusUnauthorized, ErrUnauthorized)
			return
		}

		c.Set(producerKey, producer)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func verifyJWT(raw, secret string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	return sub, nil
}

// Producer names the caller of an ingestion request when it authenticated
// with a JWT.
func Producer(c *gin.Context) string {
	return c.GetString(producerKey)
}

// RateLimit answers 429 once the client's IP exceeds limiter.
func RateLimit(limiter ratelimit.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			RespondErr(c, http.StatusTooManyRequests, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// RequestID reuses the caller's X-Request-ID or assigns a new one.
func RequestID(c *gin.Context) {
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header("X-Request-ID", id)
	c.Next()
}

func AccessLog(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Errorw("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warnw("request", fields...)
		default:
			logger.Infow("request", fields...)
		}
	}
}
