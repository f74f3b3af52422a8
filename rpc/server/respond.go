package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/rpc/common"
)

const (
	// CallerHeader carries the identity that owns locks taken by a request.
	CallerHeader  = "X-Caller-Identity"
	DefaultCaller = "anonymous"

	maxBodyBytes = 1 << 20
)

// statusFor maps an error kind to the HTTP status code.
func statusFor(kind coord.Kind) int {
	switch kind {
	case coord.KindBusy, coord.KindConflict:
		return http.StatusConflict
	case coord.KindIntegrity, coord.KindInvalid:
		return http.StatusUnprocessableEntity
	case coord.KindNotFound:
		return http.StatusNotFound
	case coord.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, resp common.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		Logger.Errorf("failed to write response: %v", err)
	}
}

func writeSuccess(w http.ResponseWriter, data any) {
	resp, err := common.NewSuccessResponse(data)
	if err != nil {
		writeFailure(w, fmt.Errorf("encode response: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeFailure(w http.ResponseWriter, err error) {
	resp := common.NewErrorResponse(err)
	status := statusFor(resp.Error.Kind)
	if status == http.StatusInternalServerError {
		Logger.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, resp)
}

// writeResult answers with the project payload or the error of a coordinator result.
func writeResult(w http.ResponseWriter, res coord.Result) {
	if !res.OK() {
		err := res.Err
		if err == nil {
			err = fmt.Errorf("operation ended with outcome %s", res.Outcome)
		}
		writeFailure(w, err)
		return
	}
	writeSuccess(w, common.NewProjectPayload(res))
}

// lockOwnerOf returns the explicit caller identity of a lock request.
// Lock requests without one are invalid.
func lockOwnerOf(r *http.Request) (string, error) {
	c := strings.TrimSpace(r.Header.Get(CallerHeader))
	if c == "" {
		return "", fmt.Errorf("%w: lock operations require the %s header", coord.ErrInvalid, CallerHeader)
	}
	return c, nil
}

// callerOf returns the caller identity of r.
func callerOf(r *http.Request) string {
	if c := strings.TrimSpace(r.Header.Get(CallerHeader)); c != "" {
		return c
	}
	return DefaultCaller
}

// readBody reads the request body and validates it against the named schema.
func (s *Server) readBody(r *http.Request, schema string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", coord.ErrInvalid, tooLarge.Limit)
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if err := s.schemas.validate(schema, body); err != nil {
		return nil, err
	}
	return body, nil
}

// decodeBody reads, validates and unmarshals the request body into dst.
func (s *Server) decodeBody(r *http.Request, schema string, dst any) error {
	body, err := s.readBody(r, schema)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", coord.ErrInvalid, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Middleware
// --------------------------------------------------------------------------

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s %d %s caller=%s", r.Method, r.URL.Path, rw.statusCode, time.Since(start), callerOf(r))
	})
}
