package router

import (
	"net/http"

	"mcpgw/internal/infra/telemetry"
)

// requestIDMiddleware propagates the inbound request id, minting one when
// the caller did not send any, and echoes it back on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(telemetry.RequestIDHeader)
		if requestID == "" {
			requestID = telemetry.NewRequestID()
		}
		w.Header().Set(telemetry.RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(telemetry.WithRequestID(r.Context(), requestID)))
	})
}
