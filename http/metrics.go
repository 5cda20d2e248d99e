package http

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "err_type"
	statusLabel  = "status"
)

var (
	apiErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_errors_total",
		Help: "The number of API requests that failed.",
	}, []string{errTypeLabel, statusLabel})
)

func instrumentAPIError(errType string, status int) {
	apiErrors.
		With(prometheus.Labels{
			errTypeLabel: errType,
			statusLabel:  strconv.Itoa(status),
		}).
		Inc()
}
