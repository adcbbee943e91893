// Package httpapi is the Fiber-based embedding HTTP surface around
// internal/engine, adapted from the teacher's internal/handler +
// internal/router. It exposes job/trigger management, manual execution,
// run lookups and read-only history over the operations the engine's
// public API already allows.
package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/minisource/jobkeeper/internal/jobkeepererr"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success sends a success response.
func Success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(Response{Success: true, Data: data})
}

// Created sends a 201 Created response.
func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{Success: true, Data: data})
}

// NoContent sends a 204 No Content response.
func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// BadRequest sends a 400 Bad Request response.
func BadRequest(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", message)
}

func fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(Response{Success: false, Error: &ErrorInfo{Code: code, Message: message}})
}

// EngineError maps a jobkeepererr.Kind (or an opaque error) to an HTTP
// status and sends the envelope.
func EngineError(c *fiber.Ctx, err error) error {
	kind, ok := jobkeepererr.Of(err)
	if !ok {
		return fail(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
	switch kind {
	case jobkeepererr.NotFound:
		return fail(c, fiber.StatusNotFound, string(kind), err.Error())
	case jobkeepererr.Configuration:
		return fail(c, fiber.StatusBadRequest, string(kind), err.Error())
	case jobkeepererr.Timeout:
		return fail(c, fiber.StatusGatewayTimeout, string(kind), err.Error())
	case jobkeepererr.State:
		return fail(c, fiber.StatusConflict, string(kind), err.Error())
	default:
		return fail(c, fiber.StatusInternalServerError, string(kind), err.Error())
	}
}
