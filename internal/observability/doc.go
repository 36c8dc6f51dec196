// Package observability builds the process logger and the Prometheus
// collectors shared by the HTTP layer.
package observability
