// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/i18n"
	"github.com/labstack/echo/v4"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind    apperror.Kind `json:"kind"`
	Message string        `json:"message"`
	Details []string      `json:"details,omitempty"`
}

// ErrorHandler renders errors returned by handlers and middleware.
// Classified errors keep their message; internal errors are logged and
// replaced by a generic one.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := errorResponse(err)
	if body.Error.Kind == apperror.KindInternal {
		slog.ErrorContext(c.Request().Context(), "request_failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		body.Error.Message = i18n.T(c.Request().Context(), "msg_internal_error")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		slog.Error("error_response_failed", "error", err)
	}
}

func errorResponse(err error) (int, ErrorBody) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr.Kind.HTTPStatus(), ErrorBody{Error: ErrorDetail{
			Kind:    appErr.Kind,
			Message: appErr.Message,
			Details: appErr.Details,
		}}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		kind := kindForStatus(httpErr.Code)
		message := http.StatusText(httpErr.Code)
		if kind != apperror.KindInternal {
			message = fmt.Sprint(httpErr.Message)
		}
		return httpErr.Code, ErrorBody{Error: ErrorDetail{Kind: kind, Message: message}}
	}

	return http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{Kind: apperror.KindInternal}}
}

func kindForStatus(status int) apperror.Kind {
	switch status {
	case http.StatusUnauthorized:
		return apperror.KindUnauthenticated
	case http.StatusForbidden:
		return apperror.KindForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperror.KindNotFound
	}
	if status >= 400 && status < 500 {
		return apperror.KindInvalidInput
	}
	return apperror.KindInternal
}
