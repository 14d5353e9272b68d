package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/stayverify/stayverify/internal/ai"
	"github.com/stayverify/stayverify/internal/docstore"
	"github.com/stayverify/stayverify/internal/email"
	"github.com/stayverify/stayverify/internal/handler"
	"github.com/stayverify/stayverify/internal/middleware"
	"github.com/stayverify/stayverify/internal/payment"
	"github.com/stayverify/stayverify/internal/push"
	"github.com/stayverify/stayverify/internal/retention"
	"github.com/stayverify/stayverify/internal/store"
	"github.com/stayverify/stayverify/internal/token"
	"github.com/stayverify/stayverify/internal/verification"
	ws "github.com/stayverify/stayverify/internal/websocket"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	authH       *handler.AuthHandler
	propertyH   *handler.PropertyHandler
	submissionH *handler.SubmissionHandler
	guestH      *handler.GuestHandler
	webhookH    *handler.WebhookHandler
	pushH       *handler.PushHandler

	sessionStore *store.SessionStore
	userStore    *store.UserStore
	pushStore    *store.PushStore
	tokens       *token.Store
	sweeper      *retention.Sweeper
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

// New wires stores, the verification service, and handlers over one
// database handle. Optional integrations (email, payments, analysis,
// storage, push) may be unconfigured; the affected endpoints report that
// instead of failing at startup.
func New(
	db *sql.DB,
	emailClient *email.Client,
	payments *payment.Client,
	analysis *ai.Client,
	docs *docstore.Store,
	pushCfg push.Config,
	logger *slog.Logger,
) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	propertyStore := store.NewPropertyStore(db)
	submissionStore := store.NewSubmissionStore(db)
	eventStore := store.NewWebhookEventStore(db)
	pushStore := store.NewPushStore(db)

	tokens := token.New(store.NewTokenStore(db), token.DefaultTTL, logger.With("component", "tokens"))

	var pushSvc *push.Service
	var alerter *push.Alerter
	if pushCfg.VAPIDPublicKey != "" && pushCfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(pushCfg.VAPIDPublicKey, pushCfg.VAPIDPrivateKey)
		alerter = push.NewAlerter(pushSvc, pushStore, logger)
	}

	svc := verification.New(
		submissionStore,
		userStore,
		emailClient,
		alerterOrNil(alerter),
		hub,
		logger,
	)

	sweeper := retention.NewSweeper(submissionStore, docs, logger)

	return &Server{
		db:           db,
		hub:          hub,
		authH:        handler.NewAuthHandler(userStore, sessionStore, tokens, emailClient, logger.With("component", "auth")),
		propertyH:    handler.NewPropertyHandler(propertyStore, userStore, payments, logger.With("component", "property")),
		submissionH:  handler.NewSubmissionHandler(submissionStore, propertyStore, svc, analysis, docs, sweeper, logger.With("component", "submission")),
		guestH:       handler.NewGuestHandler(submissionStore, docs, svc, logger.With("component", "guest")),
		webhookH:     handler.NewWebhookHandler(payments, eventStore, propertyStore, userStore, emailClient, logger.With("component", "webhook")),
		pushH:        handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler")),
		sessionStore: sessionStore,
		userStore:    userStore,
		pushStore:    pushStore,
		tokens:       tokens,
		sweeper:      sweeper,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// alerterOrNil keeps a nil *push.Alerter from becoming a non-nil Pusher
// interface inside the verification service.
func alerterOrNil(a *push.Alerter) verification.Pusher {
	if a == nil {
		return nil
	}
	return a
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// TokenStore returns the magic-link token store for cleanup tasks.
func (s *Server) TokenStore() *token.Store {
	return s.tokens
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Sweeper returns the retention sweeper so the caller controls its lifecycle.
func (s *Server) Sweeper() *retention.Sweeper {
	return s.sweeper
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/magic-link", s.rateLimitedHandler(s.authH.RequestMagicLink))
	outerMux.HandleFunc("POST /api/auth/verify", s.rateLimitedHandler(s.authH.Verify))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))

	// Guest link routes, keyed by the unguessable public ID. /s/ is the
	// short form that goes in the shared link.
	outerMux.HandleFunc("GET /s/{publicID}", s.guestH.Get)
	outerMux.HandleFunc("GET /api/public/submissions/{publicID}", s.guestH.Get)
	outerMux.HandleFunc("POST /api/public/submissions/{publicID}/guests/{guestID}/document", s.guestH.Upload)
	outerMux.HandleFunc("PATCH /api/public/submissions/{publicID}/guests/{guestID}", s.guestH.UpdateEmail)

	outerMux.HandleFunc("POST /api/webhooks/stripe", s.webhookH.HandleStripe)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes behind session auth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Account
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)
	mux.HandleFunc("PUT /api/auth/me", s.authH.UpdateProfile)
	mux.HandleFunc("POST /api/auth/password", s.authH.SetPassword)
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)

	// Properties
	mux.HandleFunc("POST /api/properties", s.propertyH.Create)
	mux.HandleFunc("GET /api/properties", s.propertyH.List)
	mux.HandleFunc("GET /api/properties/{id}", s.propertyH.Get)
	mux.HandleFunc("PUT /api/properties/{id}", s.propertyH.Update)
	mux.HandleFunc("DELETE /api/properties/{id}", s.propertyH.Delete)
	mux.HandleFunc("POST /api/properties/{id}/checkout", s.propertyH.CreateCheckout)

	// Submissions and guest review
	mux.HandleFunc("POST /api/submissions", s.submissionH.Create)
	mux.HandleFunc("GET /api/submissions", s.submissionH.List)
	mux.HandleFunc("GET /api/submissions/{id}", s.submissionH.Get)
	mux.HandleFunc("DELETE /api/submissions/{id}", s.submissionH.Delete)
	mux.HandleFunc("GET /api/submissions/{id}/guests/{guestID}/document", s.submissionH.Document)
	mux.HandleFunc("POST /api/submissions/{id}/guests/{guestID}/assess", s.submissionH.Assess)
	mux.HandleFunc("POST /api/submissions/{id}/guests/{guestID}/verify", s.submissionH.VerifyDocument)
	mux.HandleFunc("POST /api/submissions/{id}/guests/{guestID}/decision", s.submissionH.Decide)

	// Admin
	mux.Handle("POST /api/admin/cleanup", middleware.RequireAdmin(http.HandlerFunc(s.submissionH.Cleanup)))

	// Push notifications
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.List)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)

	// WebSocket
	mux.HandleFunc("GET /api/ws", ws.HandleWebSocket(s.hub))
}
