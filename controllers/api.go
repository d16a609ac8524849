package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrSecretNotConfigured = errors.New("secret not configured")
	ErrMalformedBody       = errors.New("malformed body")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrInternalError       = errors.New("internal error")
	ErrUnknownTask         = errors.New("unknown task")
)

type apiError struct {
	Error string `json:"error"`
}

func RespondOK(c *gin.Context, obj any) {
	c.JSON(http.StatusOK, obj)
}

// RespondErr aborts the request with status and a single error message.
func RespondErr(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, apiError{Error: err.Error()})
}

func RespondBadRequestErr(c *gin.Context, err error) {
	RespondErr(c, http.StatusBadRequest, err)
}

func RespondInternalErr(c *gin.Context) {
	RespondErr(c, http.StatusInternalServerError, ErrInternalError)
}
