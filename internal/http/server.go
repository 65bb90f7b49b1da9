// Package http serves the JSON API of the signed-in device session.
//
// Every data route acts for the identity currently held by the session and
// requires its bearer token. Reads come from the provider mirrors; writes go
// through the providers and answer 202 when a confirmed write was accepted
// but not yet reflected locally.
package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"lifelog/internal/autosave"
	"lifelog/internal/cache"
	"lifelog/internal/core"
	"lifelog/internal/export"
	"lifelog/internal/external"
	"lifelog/internal/localstore"
	"lifelog/internal/log"
	"lifelog/internal/metrics"
	"lifelog/internal/middleware/ratelimit"
	"lifelog/internal/middleware/security"
	"lifelog/internal/middleware/trace"
	"lifelog/internal/providers"
	"lifelog/internal/reminders"
	"lifelog/internal/session"
	"lifelog/internal/sheets"
	"lifelog/internal/stats"
)

// Location is where calendar lookups are made for.
type Location struct {
	Country string
	Lat     float64
	Lon     float64
}

// Deps are the collaborators the server routes to. Sheets may be nil when
// spreadsheet export is not configured.
type Deps struct {
	Session      *session.Session
	Transactions *providers.Transactions
	Habits       *providers.Habits
	Events       *providers.Events
	Notes        *providers.Notes
	KV           localstore.KV
	Reminders    *reminders.Scheduler
	ReminderPref *localstore.ReminderPrefs
	External     *external.Client
	Exporter     *export.Writer
	Sheets       sheets.RowAppender
	Metrics      *metrics.Metrics
	Logger       *log.Logger

	Location          Location
	NoteAutosaveDelay time.Duration
	AuthRateLimit     int
	// Now is the clock used for "today"; defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	http.Server
	deps     Deps
	logger   *log.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	clientIP *security.ClientIP
	limiter  *ratelimit.Limiter
	caches   *cache.Manager

	dashboard  stats.DashboardMemo
	habitStats stats.Memo[stats.HabitStats]

	mu      sync.Mutex
	editors map[core.NoteTopic]*autosave.Editor

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. It follows the session so per-identity state is reset on
// every sign-in and sign-out.
func NewServer(addr string, d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	logger := d.Logger.OrDefault(log.ComponentHTTP)

	s := &Server{
		deps:     d,
		logger:   logger,
		metrics:  d.Metrics,
		now:      d.Now,
		clientIP: security.NewClientIP(),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: d.AuthRateLimit}),
		caches:   cache.NewManager(logger),
		editors:  map[core.NoteTopic]*autosave.Editor{},
	}
	if d.External != nil {
		for _, c := range d.External.Caches() {
			s.caches.Register(c)
		}
	}
	if d.Session != nil {
		d.Session.OnChange(s.identityChanged)
	}

	mux := http.NewServeMux()
	s.routes(mux)

	tracer := trace.NewMiddleware(s.clientIP.Extract, logger, d.Metrics)
	s.Server = http.Server{
		Addr:              addr,
		Handler:           tracer.Middleware(security.Headers(security.DefaultHeadersConfig())(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	limited := s.limiter.Middleware(s.clientIP.Extract, func(r *http.Request) {
		s.metrics.Limited(r.URL.Path)
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.clientIP.Extract(r), log.FieldPath, r.URL.Path)
	})
	mux.Handle("POST /auth/login", limited(http.HandlerFunc(s.handleLogin)))
	mux.Handle("POST /auth/signup", limited(http.HandlerFunc(s.handleSignup)))
	mux.HandleFunc("POST /auth/logout", s.requireSession(s.handleLogout))
	mux.HandleFunc("GET /auth/me", s.requireSession(s.handleMe))

	mux.HandleFunc("GET /expenses", s.requireSession(s.handleListExpenses))
	mux.HandleFunc("POST /expenses", s.requireSession(s.handleCreateExpense))
	mux.HandleFunc("PATCH /expenses/{id}", s.requireSession(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /expenses/{id}", s.requireSession(s.handleDeleteExpense))
	mux.HandleFunc("GET /incomes", s.requireSession(s.handleListIncomes))
	mux.HandleFunc("POST /incomes", s.requireSession(s.handleCreateIncome))
	mux.HandleFunc("PATCH /incomes/{id}", s.requireSession(s.handleUpdateIncome))
	mux.HandleFunc("DELETE /incomes/{id}", s.requireSession(s.handleDeleteIncome))
	mux.HandleFunc("GET /categories", s.requireSession(s.handleListCategories))
	mux.HandleFunc("POST /categories", s.requireSession(s.handleAddCategory))
	mux.HandleFunc("GET /sources", s.requireSession(s.handleListSources))
	mux.HandleFunc("POST /sources", s.requireSession(s.handleAddSource))
	mux.HandleFunc("GET /dashboard", s.requireSession(s.handleDashboard))

	mux.HandleFunc("GET /habits", s.requireSession(s.handleListHabits))
	mux.HandleFunc("POST /habits", s.requireSession(s.handleCreateHabit))
	mux.HandleFunc("DELETE /habits/{id}", s.requireSession(s.handleDeleteHabit))
	mux.HandleFunc("POST /habits/{id}/toggle", s.requireSession(s.handleToggleHabit))
	mux.HandleFunc("GET /habits/stats", s.requireSession(s.handleHabitStats))
	mux.HandleFunc("GET /reminders", s.requireSession(s.handleListReminders))
	mux.HandleFunc("PUT /reminders/{habitID}", s.requireSession(s.handleSetReminder))
	mux.HandleFunc("DELETE /reminders/{habitID}", s.requireSession(s.handleClearReminder))

	mux.HandleFunc("GET /events", s.requireSession(s.handleListEvents))
	mux.HandleFunc("POST /events", s.requireSession(s.handleCreateEvent))
	mux.HandleFunc("PATCH /events/{id}", s.requireSession(s.handleUpdateEvent))
	mux.HandleFunc("DELETE /events/{id}", s.requireSession(s.handleDeleteEvent))
	mux.HandleFunc("GET /calendar", s.requireSession(s.handleCalendar))

	mux.HandleFunc("GET /notes/{topic}", s.requireSession(s.handleGetNote))
	mux.HandleFunc("PUT /notes/{topic}", s.requireSession(s.handleTypeNote))
	mux.HandleFunc("POST /notes/{topic}/save", s.requireSession(s.handleSaveNote))

	mux.HandleFunc("GET /goals", s.requireSession(s.handleListGoals))
	mux.HandleFunc("POST /goals", s.requireSession(s.handleCreateGoal))
	mux.HandleFunc("POST /goals/{id}/toggle", s.requireSession(s.handleToggleGoal))
	mux.HandleFunc("DELETE /goals/{id}", s.requireSession(s.handleDeleteGoal))

	mux.HandleFunc("GET /export/{file}", s.requireSession(s.handleExportCSV))
	mux.HandleFunc("POST /export/files", s.requireSession(s.handleExportFiles))
	mux.HandleFunc("POST /export/sheets", s.requireSession(s.handleExportSheets))
}

// StartCacheCleanup periodically evicts expired lookup cache entries until
// ctx is done or the server shuts down.
func (s *Server) StartCacheCleanup(ctx context.Context, interval time.Duration) {
	s.caches.StartCleanup(ctx, interval)
}

// Shutdown flushes pending note edits, stops background work, then shuts
// down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.closeEditors(ctx, true)
		s.limiter.Stop()
		s.caches.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// requireSession admits requests carrying the token of the signed-in
// identity and tags the request logger with its uid.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := s.deps.Session.Current()
		if id.IsZero() {
			s.fail(w, r, providers.ErrNoIdentity)
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			UnauthorizedError("authorization token required").Send(w)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.Session.Token())) != 1 {
			UnauthorizedError("invalid or expired token").Send(w)
			return
		}
		logger := log.FromContext(r.Context()).With(log.FieldUID, id.UID)
		ctx := context.WithValue(r.Context(), log.LoggerContextKey, logger)
		next(w, r.WithContext(ctx))
	}
}

// fail sends the response mapped from err, logging unexpected errors.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp, unexpected := ErrorFor(err)
	if unexpected {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method, log.FieldPath, r.URL.Path, log.FieldError, err)
	}
	resp.Send(w)
}

// identityChanged drops per-identity state. Reminders of the new identity
// are restored once its habits are mirrored.
func (s *Server) identityChanged(prev, next core.Identity) {
	s.closeEditors(context.Background(), false)
	if s.deps.Reminders == nil {
		return
	}
	s.deps.Reminders.ClearAll()
	if next.IsZero() || s.deps.ReminderPref == nil || s.deps.Habits == nil {
		return
	}
	go s.restoreReminders(next)
}

func (s *Server) restoreReminders(id core.Identity) {
	times := s.deps.ReminderPref.All()
	if len(times) == 0 {
		return
	}
	ids := make([]string, 0, len(times))
	for habitID := range times {
		ids = append(ids, habitID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Reminders of deleted habits never appear; restore what is there.
	_ = s.deps.Habits.WaitHabits(ctx, ids)
	if s.deps.Session.Current() != id {
		return
	}
	s.deps.Reminders.Restore(s.deps.Habits.Habits(), times)
	s.logger.Info("Reminders restored", log.FieldUID, id.UID, log.FieldCount, len(s.deps.Reminders.Active()))
}

// closeEditors closes every note editor, saving pending edits first when
// flush is set.
func (s *Server) closeEditors(ctx context.Context, flush bool) {
	s.mu.Lock()
	editors := s.editors
	s.editors = map[core.NoteTopic]*autosave.Editor{}
	s.mu.Unlock()

	for topic, e := range editors {
		if flush && e.Status().Dirty {
			if err := e.SaveNow(ctx); err != nil {
				s.logger.Warn("Dropping unsaved note", log.FieldTopic, string(topic), log.FieldError, err)
			}
		}
		e.Close()
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Send(w)
}
