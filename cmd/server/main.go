package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/slidebanai/slidebanai/backend-go/internal/ai"
	"github.com/slidebanai/slidebanai/backend-go/internal/auth"
	"github.com/slidebanai/slidebanai/backend-go/internal/coach"
	"github.com/slidebanai/slidebanai/backend-go/internal/collab"
	"github.com/slidebanai/slidebanai/backend-go/internal/config"
	"github.com/slidebanai/slidebanai/backend-go/internal/db"
	mw "github.com/slidebanai/slidebanai/backend-go/internal/middleware"
	"github.com/slidebanai/slidebanai/backend-go/internal/presentation"
	"github.com/slidebanai/slidebanai/backend-go/internal/ratelimit"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	queries := db.New(pool)

	tracker := collab.NewTracker(&accessGate{queries: queries})
	go tracker.Run(ctx)

	authService := auth.NewService(queries, cfg.JWTSecret)
	authHandler := auth.NewHandler(authService)

	aiService := ai.NewService(ai.Config{
		APIKey:        cfg.OpenAIAPIKey,
		Model:         cfg.OpenAIModel,
		MaxTokens:     cfg.OpenAIMaxTokens,
		Temperature:   cfg.OpenAITemp,
		MinSlides:     cfg.MinSlides,
		MaxSlides:     cfg.MaxSlides,
		DefaultSlides: cfg.DefaultSlides,
	})

	presentationService := presentation.NewService(queries, tracker)
	presentationHandler := presentation.NewHandler(presentationService, aiService)

	coachService := coach.NewService(queries, aiService)
	coachHandler := coach.NewHandler(coachService)

	limiters := ratelimit.NewPerClient(float64(cfg.RateLimitPerMinute)/60, cfg.RateLimitBurst)
	defer limiters.Stop()

	r := mux.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.AllowedOrigins))
	r.Use(mw.RateLimit(limiters))

	// Auth routes (public)
	r.HandleFunc("/auth/signup", authHandler.SignUp).Methods("POST")
	r.HandleFunc("/auth/signin", authHandler.SignIn).Methods("POST")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Protected API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.RequireUser)

	api.HandleFunc("/presentations", presentationHandler.List).Methods("GET")
	api.HandleFunc("/presentations", presentationHandler.Create).Methods("POST")
	api.HandleFunc("/presentations/generate", presentationHandler.Generate).Methods("POST")
	api.HandleFunc("/presentations/{presentationId}", presentationHandler.Get).Methods("GET")
	api.HandleFunc("/presentations/{presentationId}", presentationHandler.Delete).Methods("DELETE")
	api.HandleFunc("/presentations/{presentationId}/title", presentationHandler.UpdateTitle).Methods("PUT")
	api.HandleFunc("/presentations/{presentationId}/slides", presentationHandler.ReplaceSlides).Methods("PUT")
	api.HandleFunc("/presentations/{presentationId}/collaborators", presentationHandler.Invite).Methods("POST")
	api.HandleFunc("/presentations/{presentationId}/collaborators", presentationHandler.ListCollaborators).Methods("GET")
	api.HandleFunc("/presentations/{presentationId}/collaborators/{userId}", presentationHandler.UpdateCollaboratorRole).Methods("PUT")
	api.HandleFunc("/presentations/{presentationId}/collaborators/{userId}", presentationHandler.RemoveCollaborator).Methods("DELETE")

	api.HandleFunc("/coach/sessions", coachHandler.Record).Methods("POST")
	api.HandleFunc("/coach/sessions", coachHandler.List).Methods("GET")
	api.HandleFunc("/coach/sessions/{sessionId}", coachHandler.Get).Methods("GET")

	// WebSocket endpoint
	r.HandleFunc("/ws/presentations/{presentationId}", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(w, r, tracker, authService, cfg.AllowedOrigins)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// accessGate backs the presence tracker's authorization checks with the
// durable collaborator roster.
type accessGate struct {
	queries *db.Queries
}

func (g *accessGate) HasAccess(ctx context.Context, presentationID, userID string) (bool, error) {
	return g.queries.HasAccess(ctx, db.AccessParams{
		PresentationID: presentationID,
		UserID:         userID,
	})
}

func (g *accessGate) GetRole(ctx context.Context, presentationID, userID string) (collab.Role, error) {
	role, err := g.queries.GetCollaboratorRole(ctx, db.AccessParams{
		PresentationID: presentationID,
		UserID:         userID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return collab.Role(role), nil
}

func handleWebSocket(w http.ResponseWriter, r *http.Request, tracker *collab.Tracker, authSvc *auth.Service, allowedOrigins string) {
	presentationID := mux.Vars(r)["presentationId"]

	// Auth via query param; browsers cannot set headers on websocket dials.
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	userID, err := authSvc.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	user, err := authSvc.GetUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(allowedOrigins),
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := collab.NewClient(tracker, conn)

	connID, err := tracker.Join(r.Context(), userID, user.FullName, presentationID, client)
	if err != nil {
		// The tracker already reported the failure over the transport.
		slog.Info("join rejected", "user", userID, "presentation", presentationID, "error", err)
		return
	}
	client.SetConnectionID(connID)

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}

func originPatterns(allowedOrigins string) []string {
	var patterns []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		o = strings.TrimSpace(o)
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		if o != "" {
			patterns = append(patterns, o)
		}
	}
	return patterns
}
