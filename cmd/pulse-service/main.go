package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pulseout/pulse-service/internal/config"
	"github.com/pulseout/pulse-service/internal/events"
	"github.com/pulseout/pulse-service/internal/http/handlers/pings"
	"github.com/pulseout/pulse-service/internal/http/handlers/pockets"
	"github.com/pulseout/pulse-service/internal/http/handlers/posts"
	"github.com/pulseout/pulse-service/internal/http/handlers/profiles"
	wsHandler "github.com/pulseout/pulse-service/internal/http/handlers/websocket"
	"github.com/pulseout/pulse-service/internal/http/middleware"
	"github.com/pulseout/pulse-service/internal/prefs"
	"github.com/pulseout/pulse-service/internal/pulse"
	"github.com/pulseout/pulse-service/internal/refresh"
	"github.com/pulseout/pulse-service/internal/session"
	"github.com/pulseout/pulse-service/internal/storage/postgres"
	"github.com/pulseout/pulse-service/internal/websocket"
)

func main() {
	// load config
	cfg := config.MustLoad()

	// database setup
	store, err := postgres.NewPostgres(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	slog.Info("Connected to Postgres database")

	// redis setup
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	slog.Info("Connected to Redis")

	// websocket hub
	hub := websocket.NewHub()
	go hub.Run()

	publisher := events.NewEventPublisher(hub)

	preferences := prefs.NewService(redisClient)

	// session cache and optimistic mutation controller
	sessions := session.NewManager(store, preferences)
	controller := pulse.NewController(store)

	// realtime refresh: LISTEN/NOTIFY -> refetch -> coarse push
	listener := postgres.NewListener(cfg)
	trigger := refresh.New(listener, sessions, publisher)

	refreshCtx, cancelRefresh := context.WithCancel(context.Background())
	defer cancelRefresh()
	go func() {
		if err := trigger.Run(refreshCtx); err != nil {
			slog.Error("Realtime refresh trigger stopped", slog.String("error", err.Error()))
		}
	}()

	rateLimits := middleware.NewRateLimitConfig(redisClient, cfg.PingBudget)
	auth := middleware.AuthMiddleware(cfg.JWTSecret)

	// setup server
	router := http.NewServeMux()

	router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// auth
	router.HandleFunc("POST /signup", profiles.SignUp(store))
	router.HandleFunc("POST /login", profiles.Login(store, sessions, cfg.JWTSecret))
	router.Handle("POST /logout", auth(profiles.Logout(sessions)))

	// profile
	router.Handle("GET /me", auth(profiles.Me(sessions, rateLimits)))
	router.Handle("PUT /me", auth(profiles.UpdateProfile(store, sessions, preferences)))
	router.Handle("POST /me/voice-bio", auth(profiles.SetVoiceBio(store, sessions)))
	router.Handle("GET /me/prefs", auth(profiles.GetPrefs(preferences)))
	router.Handle("POST /me/pact", auth(profiles.AcceptPact(preferences)))
	router.Handle("POST /me/tour", auth(profiles.CompleteTour(preferences)))
	router.Handle("GET /profiles/search", auth(profiles.Search(store)))
	router.Handle("POST /profiles/{user_id}/follow", auth(profiles.ToggleFollow(controller, sessions)))

	// posts
	router.Handle("GET /feed", auth(posts.Feed(sessions)))
	router.Handle("POST /posts", auth(rateLimits.RateLimitedHandler("posts", posts.CreatePost(store, sessions))))
	router.Handle("DELETE /posts/{id}", auth(posts.DeletePost(store, sessions)))
	router.Handle("POST /posts/{id}/react", auth(posts.React(controller, sessions)))
	router.Handle("POST /posts/{id}/bookmark", auth(posts.ToggleBookmark(controller, sessions)))
	router.Handle("POST /posts/{id}/comments", auth(posts.AddComment(store, sessions)))
	router.Handle("DELETE /comments/{id}", auth(posts.DeleteComment(store, sessions)))

	// pockets
	router.Handle("GET /pockets", auth(pockets.List(sessions)))
	router.Handle("POST /pockets", auth(pockets.Create(store, sessions)))
	router.Handle("POST /pockets/{id}/join", auth(pockets.Join(store, sessions)))
	router.Handle("DELETE /pockets/{id}", auth(pockets.Delete(store, sessions)))

	// pings
	router.Handle("GET /pings", auth(pings.List(sessions)))
	router.Handle("POST /pings", auth(rateLimits.RateLimitedHandler("pings", pings.Create(store, sessions, publisher))))
	router.Handle("POST /pings/{id}/open", auth(pings.Open(store, sessions)))
	router.Handle("GET /pings/{id}/messages", auth(pings.Messages(store)))
	router.Handle("POST /pings/{id}/messages", auth(pings.SendMessage(store, sessions)))

	// websocket
	router.HandleFunc("GET /ws", wsHandler.WebSocketHandler(hub, cfg.JWTSecret))

	server := http.Server{
		Addr:    cfg.HTTPServer.Address,
		Handler: router,
	}

	log.Println("server started on", cfg.HTTPServer.Address)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %s", err)
		}
	}()

	<-done

	slog.Info("Shutting down server...")
	cancelRefresh()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = server.Shutdown(ctx)
	if err != nil {
		slog.Error("failed to gracefully shutdown server", slog.String("error", err.Error()))
		return
	}

	slog.Info("Server stopped")
}
