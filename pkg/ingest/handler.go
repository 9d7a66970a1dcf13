package ingest

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// SignatureHeader is the gateway's webhook signature HTTP header.
const SignatureHeader = "X-Payment-Signature"

// maxPayloadBytes bounds inbound webhook bodies.
const maxPayloadBytes = 1 << 20

// NewHandler wraps an Ingestor in an HTTP handler. Validation failures map
// to 400 so the gateway stops redelivering malformed or forged payloads;
// everything else maps to 500 and is retried by the gateway.
func NewHandler(ingestor *Ingestor, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		err = ingestor.Process(r.Context(), payload, r.Header.Get(SignatureHeader))
		if err == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		switch {
		case errors.Is(err, ErrSignatureMismatch),
			errors.Is(err, ErrMissingSignature),
			errors.Is(err, ErrInvalidEvent),
			errors.Is(err, ErrUnsupportedEvent),
			errors.Is(err, ErrEventNotSuccessful),
			errors.Is(err, ErrPlanMetadataInvalid):
			logger.WarnContext(r.Context(), "webhook rejected",
				slog.String("error", err.Error()))
			http.Error(w, "invalid webhook delivery", http.StatusBadRequest)
		default:
			logger.ErrorContext(r.Context(), "webhook processing failed",
				slog.String("error", err.Error()))
			http.Error(w, "webhook processing failed", http.StatusInternalServerError)
		}
	}
}
