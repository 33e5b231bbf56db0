package http

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/logger"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

// PurchaseCommands is everything that changes purchases.
type PurchaseCommands interface {
	PurchaseCreator
	PurchaseStatusUpdater
	ReceiptProcessor
	PurchaseImporter
}

// PurchaseQueries is everything that reads purchases.
type PurchaseQueries interface {
	PurchaseReviewer
	TicketSearcher
}

type RouterConfig struct {
	Purchases PurchaseCommands
	Queries   PurchaseQueries
	Admin     AdminRaffleService
	DB        Pinger
	Log       *logger.Logger

	JWTSecret      []byte
	WebhookSecret  string
	CORSOrigins    []string
	MaxUploadBytes int64
}

const defaultMaxUploadBytes = 10 << 20

// NewRouter mounts the public, admin and webhook routes.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = logger.Init("http", false, false, io.Discard)
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.CORSOrigins))
	r.NotFound(NotFoundHandler())
	r.MethodNotAllowed(MethodNotAllowedHandler())

	r.Get("/health", HandleHealth(cfg.DB))
	r.Post("/purchases", HandleCreatePurchase(cfg.Purchases, maxUpload, log))
	r.Get("/purchases/tickets", HandleSearchTickets(cfg.Queries, log))

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireRoles(cfg.JWTSecret, domain.RoleSuperAdmin, domain.RoleVerifier))

		r.Get("/purchases", HandleListPurchases(cfg.Queries, log))
		r.Get("/purchases/{id}", HandleGetPurchase(cfg.Queries, log))
		r.Patch("/purchases/{id}/status", HandleUpdatePurchaseStatus(cfg.Purchases, log))
		r.Patch("/purchases/{id}/notes", HandleUpdatePurchaseNotes(cfg.Purchases, log))

		r.Get("/raffles", HandleAdminRaffles(cfg.Admin, log))
		r.Get("/raffles/{id}/availability", HandleRaffleAvailability(cfg.Admin, log))
		r.Get("/payment-methods", HandleAdminPaymentMethods(cfg.Admin, log))

		r.Group(func(r chi.Router) {
			r.Use(RequireRoles(cfg.JWTSecret, domain.RoleSuperAdmin))
			r.Post("/raffles", HandleAdminRaffles(cfg.Admin, log))
			r.Patch("/raffles/{id}/status", HandleSetRaffleStatus(cfg.Admin, log))
			r.Post("/payment-methods", HandleAdminPaymentMethods(cfg.Admin, log))
		})
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(RequireWebhookSecret(cfg.WebhookSecret))
		r.Post("/ai-result", HandleAIResult(cfg.Purchases, log))
		r.Post("/audit", HandleAuditImport(cfg.Purchases, maxUpload, log))
	})

	return r
}
