package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
)

// APIResponse is the envelope of every response.
type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func SendSuccess(c *fiber.Ctx, data any, message string) error {
	return c.Status(http.StatusOK).JSON(&APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func SendCreated(c *fiber.Ctx, data any, message string) error {
	return c.Status(http.StatusCreated).JSON(&APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func SendError(c *fiber.Ctx, statusCode int, code, message string, details map[string]string) error {
	return c.Status(statusCode).JSON(&APIResponse{
		Error:     &APIError{Code: code, Message: message, Details: details},
		Timestamp: time.Now().UTC(),
	})
}

func SendBadRequest(c *fiber.Ctx, message string, details map[string]string) error {
	return SendError(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func SendUnauthorized(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func SendForbidden(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

func SendNotFound(c *fiber.Ctx, message string) error {
	return SendError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// SendLedgerError maps a processor or query error onto its HTTP status.
// Infrastructure failures are reported without their message.
func SendLedgerError(c *fiber.Ctx, err error) error {
	switch ledger.KindOf(err) {
	case ledger.ErrNotFound:
		return SendNotFound(c, err.Error())
	case ledger.ErrUnauthorized:
		return SendForbidden(c, err.Error())
	case ledger.ErrInvalidTransition:
		return SendError(c, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case ledger.ErrAlreadyExists:
		return SendError(c, http.StatusConflict, "ALREADY_EXISTS", err.Error(), nil)
	case ledger.ErrInvalidInput:
		return SendBadRequest(c, err.Error(), nil)
	}
	return fiber.NewError(http.StatusInternalServerError, "internal error")
}

// ErrorHandler renders errors that escape the handlers, including fiber's own 404/405.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	message := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	return SendError(c, code, http.StatusText(code), message, nil)
}
