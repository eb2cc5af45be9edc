package accounts_http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"ledger/internal/app/ledger"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter builds the service's HTTP handler with its middleware stack.
func NewRouter(s ledger.LedgerService, cfg RouterConfig, l *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	RegisterRoutes(r, s, l)
	return r
}

func RegisterRoutes(r chi.Router, s ledger.LedgerService, l *zap.Logger) {
	handler := NewAccountHandler(s, l.With(zap.String("component", "AccountHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ledger service is healthy!"))
	})

	r.Route("/api/accounts", func(r chi.Router) {
		r.Get("/", handler.ListAccountsHandler)
		r.Post("/", handler.CreateAccountHandler)
		r.Post("/transfer", handler.TransferHandler)
		r.Get("/{id}", handler.GetAccountHandler)
		r.Delete("/{id}", handler.DeleteAccountHandler)
		r.Get("/{id}/balance", handler.GetBalanceHandler)
	})

	r.Route("/api/banks", func(r chi.Router) {
		r.Get("/{id}/total-transfers", handler.GetTotalTransfersHandler)
	})
}
