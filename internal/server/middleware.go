package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// AuthMiddleware checks the bearer token when one is configured. /ping stays public.
func AuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.Request.URL.Path == "/ping" {
			c.Next()
			return
		}

		provided := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(provided) <= len(prefix) || provided[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"ok":    false,
				"error": "missing bearer token",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided[len(prefix):]), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"ok":    false,
				"error": "invalid token",
			})
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware tags every request with an id, reusing the caller's.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// LoggingMiddleware logs each request with duration and status.
func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug("request",
			"id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// RecoveryMiddleware catches panics and returns a 500 error.
func RecoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					"error", r,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"ok":    false,
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}
