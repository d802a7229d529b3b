package api

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
)

const callerKey = "caller"

// LoggingMiddleware logs every request, at warn level for 4xx and error level for 5xx.
func LoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if err != nil && errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("type", "api"),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if caller, ok := c.Locals(callerKey).(ledger.Address); ok {
			attrs = append(attrs, slog.String("caller", caller.String()))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		slog.LogAttrs(c.UserContext(), level, "HTTP request processed", attrs...)
		return err
	}
}

// TokenValidator checks HS256 bearer tokens. The subject is the caller's ledger address.
type TokenValidator struct {
	secret []byte
}

func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

func (v *TokenValidator) Validate(tokenStr string) (ledger.Address, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token subject is required")
	}
	return ledger.Address(claims.Subject), nil
}

// AuthRequired rejects requests without a valid bearer token and stores the caller.
func AuthRequired(v *TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return SendUnauthorized(c, "Missing Authorization header")
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return SendUnauthorized(c, "Invalid Authorization header format (expected 'Bearer <token>')")
		}
		if v == nil {
			return SendUnauthorized(c, "Authentication not configured")
		}

		caller, err := v.Validate(parts[1])
		if err != nil {
			slog.Debug("Rejected token", slog.String("type", "api"), slog.Any("error", err))
			return SendUnauthorized(c, "Invalid or expired token")
		}
		c.Locals(callerKey, caller)
		return c.Next()
	}
}

// Caller returns the address set by AuthRequired.
func Caller(c *fiber.Ctx) ledger.Address {
	caller, _ := c.Locals(callerKey).(ledger.Address)
	return caller
}
