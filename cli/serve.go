package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"devicegateway/adb"
	"devicegateway/api"
	"devicegateway/config"
	"devicegateway/imaging"
	"devicegateway/service"
	"devicegateway/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log.Info().Msg("Starting Android Device Gateway...")

	client := adb.NewClient(cfg.ADB.ServerAddr, cfg.ADB.Candidates)
	if err := client.EnsureServerRunning(ctx); err != nil {
		// keep serving; the supervisor retries connecting later
		log.Warn().Err(err).Msg("⚠️ ADB server not available, continuing degraded")
	}

	encoder, err := imaging.NewEncoder(cfg.Capture.Format, cfg.Capture.Quality)
	if err != nil {
		return err
	}

	session := service.NewSession(client, cfg.SessionOptions())
	supervisor := service.NewSupervisor(session, cfg.SupervisorOptions())

	handlers := &api.Handlers{
		Session:  session,
		Encoder:  encoder,
		Phase:    supervisor,
		DebugDir: cfg.Debug.ScreenshotDir,
	}

	var recorder service.ActionRecorder
	st, err := openStore(cfg.Database)
	if err != nil {
		log.Warn().Err(err).Msg("Action store disabled")
	}
	if st != nil {
		defer st.Close()
		recorder = st
		handlers.Store = st
	}

	dispatcher := service.NewActionDispatcher(session, recorder)
	handlers.Dispatcher = dispatcher

	hub := api.NewHub()
	broadcaster := service.NewBroadcaster(session, encoder, hub, cfg.Stream.FPS)
	broadcaster.SetCaptureTimeout(cfg.CaptureTimeout())
	handlers.Stream = broadcaster

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger())
	api.SetupRoutes(router, handlers, hub)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	var wg sync.WaitGroup
	for _, loop := range []func(context.Context){hub.Run, dispatcher.Run, broadcaster.Run, supervisor.Run} {
		loop := loop
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown")
		}
	}()

	host, port := session.Endpoint()
	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("device", net.JoinHostPort(host, strconv.Itoa(port))).
		Int("fps", cfg.Stream.FPS).
		Msg("🚀 Server listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	wg.Wait()
	log.Info().Msg("Gateway stopped")
	return nil
}

// openStore returns nil without error when the store is disabled
func openStore(cfg config.DatabaseConfig) (*store.Store, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	db, err := config.InitDatabase(cfg.Path)
	if err != nil {
		return nil, err
	}
	st, err := store.New(db, cfg.PatternCache)
	if err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}
