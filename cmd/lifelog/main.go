package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"lifelog/internal/auth"
	"lifelog/internal/backend"
	"lifelog/internal/cli"
	"lifelog/internal/config"
	"lifelog/internal/export"
	"lifelog/internal/external"
	apphttp "lifelog/internal/http"
	"lifelog/internal/localstore"
	"lifelog/internal/log"
	"lifelog/internal/metrics"
	"lifelog/internal/providers"
	"lifelog/internal/reminders"
	"lifelog/internal/session"
	"lifelog/internal/sheets"
	gsheet "lifelog/internal/sheets/google"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).Create(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	m := metrics.New()

	users := auth.NewDocUserStorage(res.Store)
	sess := session.New(
		auth.NewPasswordAuthenticator(users),
		auth.NewJWTManager(cfg.JWTSecret, cfg.SessionTTL),
		users, res.KV, logger)

	mode, _ := providers.ParseWriteMode(cfg.WriteMode)
	opts := providers.Options{
		Mode:           mode,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Logger:         logger,
		Metrics:        m,
	}
	transactions := providers.NewTransactions(res.Store, opts)
	habits := providers.NewHabits(res.Store, opts)
	events := providers.NewEvents(res.Store, opts)
	notes := providers.NewNotes(res.Store, opts)
	providers.Bind(sess, logger, transactions, habits, events, notes)

	prefs, err := localstore.LoadReminderPrefs(ctx, res.KV)
	if err != nil {
		logger.Error("Failed to load reminder preferences", log.FieldError, err)
		os.Exit(1)
	}
	scheduler := reminders.NewScheduler(reminders.NewLogNotifier(logger), reminders.WithLogger(logger))

	lookups := external.NewClient(external.Config{
		HolidaysBaseURL: cfg.HolidaysBaseURL,
		WeatherBaseURL:  cfg.WeatherBaseURL,
		Timeout:         cfg.LookupTimeout,
		CacheTTL:        cfg.LookupCacheTTL,
	}, logger, m)

	sheetsDst, err := setupSheets(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Session:      sess,
		Transactions: transactions,
		Habits:       habits,
		Events:       events,
		Notes:        notes,
		KV:           res.KV,
		Reminders:    scheduler,
		ReminderPref: prefs,
		External:     lookups,
		Exporter:     export.NewWriter(cfg.ExportDir, logger),
		Sheets:       sheetsDst,
		Metrics:      m,
		Logger:       logger,
		Location: apphttp.Location{
			Country: cfg.HolidayCountry,
			Lat:     cfg.WeatherLat,
			Lon:     cfg.WeatherLon,
		},
		NoteAutosaveDelay: cfg.NoteAutosaveDelay,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Restore after the server is built so its session watchers see the sign-in.
	if id, err := sess.Restore(ctx); err != nil {
		logger.Warn("Failed to restore session", log.FieldError, err)
	} else if !id.IsZero() {
		logger.Info("Restored session", log.FieldUID, id.UID)
	}

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		scheduler.ClearAll()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	go func() {
		if err := res.Follow(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error("Change feed stopped", log.FieldError, err)
		}
	}()
	srv.StartCacheCleanup(runCtx, 10*time.Minute)

	logger.Info("Starting lifelog server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"write_mode", mode.String(),
		"sheets_enabled", sheetsDst != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Server stopped gracefully")
}

// setupSheets returns nil when spreadsheet export is not configured.
func setupSheets(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.RowAppender, error) {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
		return nil, nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"oauth_user", cfg.GoogleOAuthTokenFile != "")
	return client, nil
}
