package api

import (
	"errors"
	"net/http"

	"voc-dashboard/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var submission *domain.SubmissionError
	var timeout *domain.TimeoutError
	var config *domain.ConfigError
	var auth *domain.AuthError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &submission):
		return http.StatusUnprocessableEntity
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &config):
		return http.StatusServiceUnavailable
	case errors.As(err, &auth):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
