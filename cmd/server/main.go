// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/talespin-gg/talespin/internal/config"
	"github.com/talespin-gg/talespin/internal/deck"
	"github.com/talespin-gg/talespin/internal/handlers"
	"github.com/talespin-gg/talespin/internal/middleware"
	"github.com/talespin-gg/talespin/internal/room"
	"github.com/talespin-gg/talespin/internal/telemetry"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	baseDeck, err := deck.Load(cfg.CardsDir)
	if err != nil {
		logger.Fatalf("loading card catalog: %v", err)
	}
	logger.Infof("loaded %d cards from %s", len(baseDeck), cfg.CardsDir)

	reg := room.NewRegistry(baseDeck, logger)

	if cfg.RedisAddr != "" {
		recorder, err := telemetry.NewRecorder(cfg.RedisAddr, cfg.RedisDB, "")
		if err != nil {
			logger.Fatalf("connecting round telemetry: %v", err)
		}
		reg.OnRoundResolved = func(rr room.RoundRecord) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := recorder.RecordRound(ctx, rr); err != nil {
					logger.Warnf("recording round for room %s: %v", rr.RoomID, err)
				}
			}()
		}
		logger.Infof("round telemetry enabled (%s)", cfg.RedisAddr)
	}

	go reg.Run(context.Background())

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Heartbeat("/ping"))
	r.Use(middleware.LogMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/ws", handlers.WSHandler(logger, reg))
	r.Post("/create", handlers.CreateRoomHandler(logger, reg))
	r.Post("/exists", handlers.ExistsHandler(reg))
	r.Get("/stats", handlers.StatsHandler(logger, reg))
	r.Get("/", handlers.RootHandler)

	logger.Infof("listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
