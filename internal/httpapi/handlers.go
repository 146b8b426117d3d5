package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"libris.org/internal/auth"
	"libris.org/internal/library"
	"libris.org/internal/obs"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleLibraryError maps domain errors to status codes. Anything not in the
// taxonomy is a storage fault: logged with detail, surfaced as a generic 500.
func handleLibraryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, library.ErrInvalidBook):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, library.ErrBookUnavailable):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, library.ErrLoanAlreadyClosed):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, library.ErrBookNotFound), errors.Is(err, library.ErrLoanNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		obs.LogError("library storage failure", err, map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrSessionInvalid):
		writeError(w, r, http.StatusUnauthorized, "session expired or invalid")
	default:
		obs.LogError("auth failure", err, map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
