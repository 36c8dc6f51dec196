package audit

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// MetaFromRequest captures the request id, client address and user agent of r.
// RemoteAddr is expected to have been rewritten by middleware.RealIP.
func MetaFromRequest(r *http.Request) RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return RequestMeta{
		RequestID: middleware.GetReqID(r.Context()),
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
