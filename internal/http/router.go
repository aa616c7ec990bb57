package apihttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/example/bloodchain/internal/auth"
	"github.com/example/bloodchain/internal/handlers"
	"github.com/example/bloodchain/internal/logging"
	"github.com/example/bloodchain/internal/rate"
	"github.com/example/bloodchain/pkg/jsonutil"
)

// HealthChecker reports whether a backend is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps holds everything the router mounts. Store, Chain and Metrics may be
// nil: a nil Store disables API key checks, which is only sensible on
// localnet.
type Deps struct {
	Accounts *handlers.AccountHandler
	Limiter  *rate.LimiterMap
	Store    auth.APIKeyStore
	Chain    HealthChecker
	Metrics  http.Handler
	Logger   logrus.FieldLogger
}

// NewRouter wires routes and middlewares.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(Logger(d.Logger))
	r.Use(CORS)
	r.Use(RateLimit(d.Limiter))

	r.Get("/healthz", healthz(d))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		if d.Store != nil {
			api.Use(Auth(d.Store))
		}
		api.Post("/accounts", d.Accounts.Create)
		api.Route("/accounts/{account}", func(acct chi.Router) {
			acct.Post("/donations", d.Accounts.AddDonation)
			acct.Get("/donations", d.Accounts.History)
			acct.Post("/retrieve", d.Accounts.Retrieve)
			acct.Get("/transactions", d.Accounts.Transactions)
		})
		api.Post("/history", d.Accounts.Histories)
	})

	return r
}

func healthz(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if d.Store != nil {
			if err := d.Store.Ping(ctx); err != nil {
				status["store"] = err.Error()
				code = http.StatusInternalServerError
			}
		}
		if d.Chain != nil {
			if err := d.Chain.Health(ctx); err != nil {
				status["chain"] = err.Error()
				code = http.StatusInternalServerError
			}
		}
		if code != http.StatusOK {
			status["status"] = "unhealthy"
		}
		jsonutil.JSON(w, code, status)
	}
}
