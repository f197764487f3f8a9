package app

import (
	"net/http"
	"time"

	"lmsquiz/internal/app/apiresp"

	"github.com/go-chi/httprate"
)

// LoginRateLimit caps requests per client IP and endpoint over a sliding
// one-minute window. Rejections use the JSON envelope.
func LoginRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		perMinute = 60
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			apiresp.WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
}
