package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"libris.org/internal/auth"
	"libris.org/internal/library"
	"libris.org/internal/notify"
	"libris.org/internal/obs"
	"libris.org/internal/ratelimit"
)

// ReadyProbe checks backing dependencies for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the library, the credential authority and the
// admission limiter.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	library   library.Service
	authority *auth.Authority
	limiter   ratelimit.Limiter
	notifier  notify.Notifier

	// Coarse per-IP limits applied to the whole surface; the fixed-window
	// limiter above guards the sensitive operations specifically.
	rateBurst  int
	ratePerSec int

	stopRate func()
}

// New wires the routes. limiter and notifier may be nil in tests.
func New(rp ReadyProbe, version string, lib library.Service, authority *auth.Authority,
	limiter ratelimit.Limiter, notifier notify.Notifier) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		library:    lib,
		authority:  authority,
		limiter:    limiter,
		notifier:   notifier,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/signup", a.handleSignUp)
	a.mux.HandleFunc("/v1/auth/signin", a.handleSignIn)
	a.mux.HandleFunc("/v1/auth/session", a.handleSession)

	a.mux.HandleFunc("/v1/books", a.handleBooksCollection)
	a.mux.HandleFunc("/v1/books/", a.handleBookResource)
	a.mux.HandleFunc("/v1/loans", a.handleLoansCollection)
	a.mux.HandleFunc("/v1/loans/", a.handleLoanResource)
	a.mux.HandleFunc("/v1/admin/overdue-sweep", a.handleOverdueSweep)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h, a.stopRate = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// Close stops background work owned by the handler chain.
func (a *API) Close() {
	if a.stopRate != nil {
		a.stopRate()
	}
}

// --- service handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "libris-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "libris-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
