package smsgate

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// maxCommandBody bounds the size of a submitted command.
const maxCommandBody = 4096

// NewRouter builds the HTTP boundary of the bridge:
//
//	POST /command  submit a command ("cmd" form/query value or raw body)
//	GET  /result   fetch the last result once, "" when none is ready
//	GET  /healthz  liveness
//
// Handlers only touch the Bridge, so they never block on the modem. Extra
// routes (e.g. /metrics) can be mounted by the caller on the returned router.
func NewRouter(bridge *Bridge, logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, requestLogger(logger))
	r.Post("/command", handleCommand(bridge))
	r.Get("/result", handleResult(bridge))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func handleCommand(bridge *Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, err := commandFromRequest(w, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch err := bridge.Submit(cmd); {
		case errors.Is(err, ErrEmptyCommand):
			http.Error(w, "missing command", http.StatusBadRequest)
		case errors.Is(err, ErrBridgeBusy):
			http.Error(w, "busy, retry later", http.StatusTooManyRequests)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	}
}

func commandFromRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCommandBody)
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || r.URL.Query().Has("cmd") {
		if err := r.ParseForm(); err != nil {
			return "", err
		}
		return r.Form.Get("cmd"), nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func handleResult(bridge *Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		io.WriteString(w, bridge.FetchResult())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Debug().Str("method", r.Method).Str("url", r.URL.String()).
				Str("request_id", middleware.GetReqID(r.Context())).Int("status", sw.status).Msg("http")
		})
	}
}
