package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gallerybot/internal/service"
	"gallerybot/internal/telegram"
)

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	DBPing func(context.Context) error

	Admin *service.AdminService

	// Updates receives webhook updates. It must not block on the update's
	// processing; the request context ends with the response.
	Updates       func(ctx context.Context, u telegram.Update)
	WebhookSecret string

	// AdminKeyHash is the argon2id hash guarding /v1/admin. Empty disables
	// the admin API.
	AdminKeyHash string
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := &api{
		logger:        logger,
		isProd:        opts.IsProd,
		dbPing:        opts.DBPing,
		adminSvc:      opts.Admin,
		updates:       opts.Updates,
		webhookSecret: opts.WebhookSecret,
		adminKeyHash:  opts.AdminKeyHash,
		keyLimiter:    newAttemptLimiter(),
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /healthz", api.handleHealthz)
	if api.updates != nil && api.webhookSecret != "" {
		publicMux.HandleFunc("POST /telegram/webhook", api.handleWebhook)
	} else {
		publicMux.HandleFunc("POST /telegram/webhook", handleNotImplemented)
	}

	if api.adminSvc == nil || api.adminKeyHash == "" {
		apiMux.HandleFunc("/v1/admin/", handleNotImplemented)
	} else {
		apiMux.HandleFunc("GET /v1/admin/stats", api.requireAdminKey(api.handleAdminStats))
		apiMux.HandleFunc("GET /v1/admin/users/{id}", api.requireAdminKey(api.handleAdminUser))
		apiMux.HandleFunc("POST /v1/admin/users/{id}/ban", api.requireAdminKey(api.handleAdminToggleBan))
		apiMux.HandleFunc("GET /v1/admin/bans", api.requireAdminKey(api.handleAdminBans))
		apiMux.HandleFunc("GET /v1/admin/logs", api.requireAdminKey(api.handleAdminLogs))
		apiMux.HandleFunc("DELETE /v1/admin/logs", api.requireAdminKey(api.handleAdminClearLogs))
		apiMux.HandleFunc("GET /v1/admin/galleries/{a}/{b}", api.requireAdminKey(api.handleAdminGallery))
	}

	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := apiMux.Handler(r)
		if pattern == "" {
			handleV1NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || r.URL.Path == "/v1" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		publicMux.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotImplemented, "not_implemented", "not implemented")
}

func handleV1NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "not found")
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error

	adminSvc      *service.AdminService
	updates       func(ctx context.Context, u telegram.Update)
	webhookSecret string
	adminKeyHash  string

	keyLimiter *attemptLimiter
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
