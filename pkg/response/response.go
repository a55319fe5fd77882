// Package response is the JSON envelope shared by every API handler.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body wraps every API payload. Error is set only on failures.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK sends 200 with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends 201 with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400.
func BadRequest(c *gin.Context, err string) {
	fail(c, http.StatusBadRequest, err)
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	fail(c, http.StatusUnauthorized, err)
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	fail(c, http.StatusNotFound, err)
}

// Conflict sends 409.
func Conflict(c *gin.Context, err string) {
	fail(c, http.StatusConflict, err)
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	fail(c, http.StatusInternalServerError, err)
}

func fail(c *gin.Context, status int, err string) {
	c.JSON(status, Body{Success: false, Error: err})
}
