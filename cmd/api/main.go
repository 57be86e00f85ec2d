package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-tavern/chatengine/internal/auth"
	"github.com/zhouzirui/z-tavern/chatengine/internal/config"
	"github.com/zhouzirui/z-tavern/chatengine/internal/handler"
	"github.com/zhouzirui/z-tavern/chatengine/internal/metrics"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/persona"
	"github.com/zhouzirui/z-tavern/chatengine/internal/service/ai"
	"github.com/zhouzirui/z-tavern/chatengine/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/service/media"
	"github.com/zhouzirui/z-tavern/chatengine/internal/service/quota"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	personaStore := persona.NewMemoryStore(persona.Seed())

	var responder ai.Responder = ai.FallbackResponder{}
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing with scripted persona replies")
		} else {
			responder = aiService
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark credentials not configured, using scripted persona replies")
	}

	tokens, err := auth.NewService(cfg.Auth)
	if err != nil {
		log.Fatalf("failed to initialize token service: %v", err)
	}

	router := handler.NewRouter(handler.Services{
		Personas:  personaStore,
		Chat:      chat.NewService(),
		Responder: responder,
		Quota:     quota.NewService(cfg.Quota),
		Media:     media.NewService(media.DefaultMaxSize),
		Auth:      tokens,
		Metrics:   metrics.New(),
		AccessLog: cfg.Server.AccessLog,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Z Tavern chat backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
