package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes, one per HTTP status the API returns. Clients branch on the
// code, not the message.
const (
	CodeValidation         = "validation"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeRateLimit          = "rate_limit"
	CodeInternal           = "internal"
	CodeServiceUnavailable = "service_unavailable"
)

// ErrorBody carries the machine-readable code and a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with code "validation".
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: &ErrorBody{Code: CodeValidation, Message: msg}})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: &ErrorBody{Code: CodeUnauthorized, Message: msg}})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: &ErrorBody{Code: CodeForbidden, Message: msg}})
}

// NotFound sends 404.
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: &ErrorBody{Code: CodeNotFound, Message: msg}})
}

// Conflict sends 409.
func Conflict(c *gin.Context, msg string) {
	c.JSON(http.StatusConflict, Body{Success: false, Error: &ErrorBody{Code: CodeConflict, Message: msg}})
}

// RateLimited sends 429.
func RateLimited(c *gin.Context, msg string) {
	c.JSON(http.StatusTooManyRequests, Body{Success: false, Error: &ErrorBody{Code: CodeRateLimit, Message: msg}})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, msg string) {
	c.JSON(http.StatusServiceUnavailable, Body{Success: false, Error: &ErrorBody{Code: CodeServiceUnavailable, Message: msg}})
}

// Internal sends 500. The message must not leak internals; handlers log the
// underlying error and pass a generic description here.
func Internal(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: &ErrorBody{Code: CodeInternal, Message: msg}})
}
