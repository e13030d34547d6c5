package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rsheldon/flatmate/internal/backup"
	"github.com/rsheldon/flatmate/internal/email"
	"github.com/rsheldon/flatmate/internal/handler"
	"github.com/rsheldon/flatmate/internal/middleware"
	"github.com/rsheldon/flatmate/internal/push"
	"github.com/rsheldon/flatmate/internal/store"
	"github.com/rsheldon/flatmate/internal/task"
	ws "github.com/rsheldon/flatmate/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	authH         *handler.AuthHandler
	userH         *handler.UserHandler
	homeH         *handler.HomeHandler
	taskH         *handler.TaskHandler
	ruleH         *handler.RuleHandler
	expenseH      *handler.ExpenseHandler
	pushH         *handler.PushHandler
	backupH       *handler.BackupHandler
	sessionStore  *store.SessionStore
	inviteStore   *store.InviteStore
	homeStore     *store.HomeStore
	pushStore     *store.PushStore
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	pushService   *push.Service
	pushScheduler *push.Scheduler
	logger        *slog.Logger
}

func New(db *sql.DB, emailClient *email.Client, backupCfg backup.Config, pushCfg push.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	homeStore := store.NewHomeStore(db)
	sessionStore := store.NewSessionStore(db)
	inviteStore := store.NewInviteStore(db)
	taskStore := store.NewTaskStore(db)
	ruleStore := store.NewRuleStore(db)
	expenseStore := store.NewExpenseStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	backupMgr := backup.NewManager(backupCfg, db, backupStore, logger.With("component", "backup"))

	// Web push is optional; the task lifecycle and the missed-task sweep run
	// either way.
	var pushSvc *push.Service
	var notifier task.Notifier
	if pushCfg.VAPIDPublicKey != "" && pushCfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(pushCfg.VAPIDPublicKey, pushCfg.VAPIDPrivateKey)
		notifier = push.NewNotifier(pushSvc, pushStore, logger)
	}

	taskSvc := task.NewService(taskStore, notifier, logger)
	pushSched := push.NewScheduler(pushSvc, pushStore, taskStore, taskSvc)

	rateLimiter := middleware.NewRateLimiter()

	return &Server{
		db:            db,
		hub:           hub,
		authH:         handler.NewAuthHandler(userStore, sessionStore, homeStore, rateLimiter, logger.With("component", "auth")),
		userH:         handler.NewUserHandler(userStore, sessionStore, hub, logger.With("component", "user")),
		homeH:         handler.NewHomeHandler(homeStore, inviteStore, userStore, emailClient, hub, logger.With("component", "home")),
		taskH:         handler.NewTaskHandler(taskStore, homeStore, taskSvc, hub, logger.With("component", "task")),
		ruleH:         handler.NewRuleHandler(ruleStore, hub, logger.With("component", "rule")),
		expenseH:      handler.NewExpenseHandler(expenseStore, hub, logger.With("component", "expense")),
		pushH:         handler.NewPushHandler(pushSvc, pushStore, logger.With("component", "push_handler")),
		backupH:       handler.NewBackupHandler(backupMgr, backupStore, logger.With("component", "backup_handler")),
		sessionStore:  sessionStore,
		inviteStore:   inviteStore,
		homeStore:     homeStore,
		pushStore:     pushStore,
		rateLimiter:   rateLimiter,
		backupManager: backupMgr,
		pushService:   pushSvc,
		pushScheduler: pushSched,
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// InviteStore returns the invite store for cleanup tasks.
func (s *Server) InviteStore() *store.InviteStore {
	return s.inviteStore
}

// PushStore returns the push store for cleanup tasks.
func (s *Server) PushStore() *store.PushStore {
	return s.pushStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// PushScheduler returns the notification scheduler.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/auth/register", s.authH.Register)
	outerMux.HandleFunc("POST /api/auth/login", s.authH.Login)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.homeStore)
	outerMux.Handle("/api/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// home gates a handler on home membership.
func (s *Server) home(h http.HandlerFunc) http.Handler {
	return middleware.RequireHome(h)
}

// owner gates a handler on home membership with the owner role.
func (s *Server) owner(h http.HandlerFunc) http.Handler {
	return middleware.RequireHome(middleware.RequireOwner(h))
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Session and profile
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)
	mux.HandleFunc("PUT /api/me", s.userH.UpdateProfile)
	mux.HandleFunc("PUT /api/me/password", s.userH.ChangePassword)

	// Home creation and joining happen before membership exists
	mux.HandleFunc("POST /api/homes", s.homeH.Create)
	mux.HandleFunc("POST /api/homes/join", s.homeH.Join)

	// Home
	mux.Handle("GET /api/home", s.home(s.homeH.Get))
	mux.Handle("PUT /api/home", s.owner(s.homeH.Update))
	mux.Handle("POST /api/home/invite-code", s.owner(s.homeH.RotateInviteCode))
	mux.Handle("GET /api/home/members", s.home(s.homeH.ListMembers))
	mux.Handle("DELETE /api/home/members/{id}", s.home(s.homeH.RemoveMember))
	mux.Handle("PUT /api/home/members/{id}/rent-share", s.owner(s.homeH.UpdateRentShare))
	mux.Handle("POST /api/home/invites", s.home(s.homeH.CreateInvite))
	mux.Handle("GET /api/home/invites", s.home(s.homeH.ListInvites))

	// Tasks
	mux.Handle("POST /api/tasks", s.home(s.taskH.Create))
	mux.Handle("GET /api/tasks", s.home(s.taskH.List))
	mux.Handle("GET /api/tasks/{id}", s.home(s.taskH.Get))
	mux.Handle("PUT /api/tasks/{id}", s.home(s.taskH.Update))
	mux.Handle("DELETE /api/tasks/{id}", s.home(s.taskH.Delete))
	mux.Handle("PUT /api/tasks/{id}/status", s.home(s.taskH.UpdateStatus))
	mux.Handle("PUT /api/tasks/{id}/rotation", s.home(s.taskH.SetRotation))
	mux.Handle("POST /api/tasks/{id}/complete", s.home(s.taskH.Complete))
	mux.Handle("GET /api/tasks/{id}/completions", s.home(s.taskH.ListCompletions))
	mux.Handle("POST /api/completions/{id}/rate", s.home(s.taskH.RateCompletion))

	// Swap requests
	mux.Handle("POST /api/swaps", s.home(s.taskH.CreateSwap))
	mux.Handle("GET /api/swaps", s.home(s.taskH.ListSwaps))
	mux.Handle("POST /api/swaps/{id}/respond", s.home(s.taskH.RespondSwap))

	// House rules
	mux.Handle("POST /api/rules", s.home(s.ruleH.Create))
	mux.Handle("GET /api/rules", s.home(s.ruleH.List))
	mux.Handle("GET /api/rules/{id}", s.home(s.ruleH.Get))
	mux.Handle("PUT /api/rules/{id}", s.home(s.ruleH.Update))
	mux.Handle("DELETE /api/rules/{id}", s.home(s.ruleH.Delete))
	mux.Handle("POST /api/rules/{id}/agreement", s.home(s.ruleH.ToggleAgreement))
	mux.Handle("POST /api/rules/{id}/comments", s.home(s.ruleH.AddComment))

	// Expenses
	mux.Handle("POST /api/expenses", s.home(s.expenseH.Create))
	mux.Handle("GET /api/expenses", s.home(s.expenseH.List))
	mux.Handle("DELETE /api/expenses/{id}", s.home(s.expenseH.Delete))
	mux.Handle("GET /api/expenses/totals", s.home(s.expenseH.Totals))

	// Push notifications
	mux.Handle("GET /api/push/vapid-key", s.home(s.pushH.VAPIDKey))
	mux.Handle("POST /api/push/subscribe", s.home(s.pushH.Subscribe))
	mux.Handle("GET /api/push/subscriptions", s.home(s.pushH.ListSubscriptions))
	mux.Handle("DELETE /api/push/subscriptions/{id}", s.home(s.pushH.Unsubscribe))
	mux.Handle("GET /api/push/preferences", s.home(s.pushH.GetPreferences))
	mux.Handle("PUT /api/push/preferences", s.home(s.pushH.SetPreference))

	// Backups (owner only)
	mux.Handle("GET /api/backups/status", s.owner(s.backupH.Status))
	mux.Handle("GET /api/backups", s.owner(s.backupH.List))
	mux.Handle("POST /api/backups/run", s.owner(s.backupH.RunNow))
	mux.Handle("GET /api/backups/{id}/download", s.owner(s.backupH.Download))
	mux.Handle("POST /api/backups/{id}/restore", s.owner(s.backupH.Restore))

	// WebSocket
	mux.HandleFunc("GET /api/ws", ws.HandleWebSocket(s.hub))
}
