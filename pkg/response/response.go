// Package response writes the JSON envelope every API route answers with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the API envelope. Data is set on success, Error on failure.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Body{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	c.JSON(status, Body{Error: msg})
}

// OK answers 200 with data.
func OK(c *gin.Context, data interface{}) { ok(c, http.StatusOK, data) }

// Created answers 201 with the new resource.
func Created(c *gin.Context, data interface{}) { ok(c, http.StatusCreated, data) }

// BadRequest answers 400.
func BadRequest(c *gin.Context, msg string) { fail(c, http.StatusBadRequest, msg) }

// Unauthorized answers 401.
func Unauthorized(c *gin.Context, msg string) { fail(c, http.StatusUnauthorized, msg) }

// Forbidden answers 403.
func Forbidden(c *gin.Context, msg string) { fail(c, http.StatusForbidden, msg) }

// NotFound answers 404.
func NotFound(c *gin.Context, msg string) { fail(c, http.StatusNotFound, msg) }

// ServiceUnavailable answers 503.
func ServiceUnavailable(c *gin.Context, msg string) { fail(c, http.StatusServiceUnavailable, msg) }

// Internal answers 500. msg is sent to the client, so it must not carry error internals.
func Internal(c *gin.Context, msg string) { fail(c, http.StatusInternalServerError, msg) }

// Unavailable answers 503 and still carries data, such as a per-dependency
// health report.
func Unavailable(c *gin.Context, data interface{}) {
	c.JSON(http.StatusServiceUnavailable, Body{Data: data, Error: http.StatusText(http.StatusServiceUnavailable)})
}
