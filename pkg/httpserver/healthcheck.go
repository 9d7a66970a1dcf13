package httpserver

import "net/http"

// Healthcheck is a minimal liveness endpoint.
func Healthcheck() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
