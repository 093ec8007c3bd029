// Package metricsvc exposes the platform's prometheus collectors.
package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform", Name: "http_requests_total", Help: "Handled HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "platform", Name: "http_request_duration_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	AttendanceRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "platform", Name: "attendance_records_total", Help: "Attendance rows written by sheet submissions",
	})

	AttendanceSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "platform", Name: "attendance_skipped_total", Help: "Sheet rows skipped for missing active enrollment",
	})

	AuthDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "platform", Name: "authorization_denied_total", Help: "Requests denied by the authorization engine",
	})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, AttendanceRecords, AttendanceSkipped, AuthDenied)
}

func Handler() http.Handler { return promhttp.Handler() }

// ObserveRequest records one handled request.
func ObserveRequest(method, path string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
