package services

import (
	"context"
	"net/http"
	"time"
)

// ServiceError is a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string { return e.Message }

func badRequest(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusBadRequest, Message: msg}
}

func notFound(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusNotFound, Message: msg}
}

func conflict(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusConflict, Message: msg}
}

func internal(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusInternalServerError, Message: msg}
}

// MetricsRecorder is satisfied by *aws.MetricsClient.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// recordCount sends a counter off the request path.
func recordCount(m MetricsRecorder, name string, dimensions map[string]string) {
	if m == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.RecordCount(ctx, name, dimensions)
	}()
}

// Throttle limits how often a key may be acted on.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}
