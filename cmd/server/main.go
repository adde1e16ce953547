// cmd/server/main.go
package main

import (
	"net/http"
	"os"
	"os/signal"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/MushroomFleet/lobby-system/internal/auth"
	"github.com/MushroomFleet/lobby-system/internal/cache"
	"github.com/MushroomFleet/lobby-system/internal/database"
	"github.com/MushroomFleet/lobby-system/internal/game"
	"github.com/MushroomFleet/lobby-system/internal/handlers"
	"github.com/MushroomFleet/lobby-system/internal/middleware"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	if err := auth.Init(); err != nil {
		logger.Fatalf("auth init failed: %v", err)
	}
	database.ConnectDB()
	if err := cache.ConnectRedis(); err != nil {
		// Chronicling is best-effort; rooms run fine without it.
		logger.Warnf("redis unavailable, room events will not be chronicled: %v", err)
	}

	srv := handlers.NewLobbyServer(logger, game.NewLauncher(logger))

	mux := http.NewServeMux()

	// player endpoints
	mux.HandleFunc("/player/create", handlers.CreatePlayerHandler)
	mux.HandleFunc("/player/login", handlers.LoginHandler(logger))

	// room endpoints
	mux.Handle("/room/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(srv),
	)))
	mux.Handle("/room/list", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListRoomsHandler(srv),
	)))

	// room ws
	mux.Handle("/room/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(srv),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	server := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("lobby service listening on %s", addr)
		errc <- server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Fatalf("server exited: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}
}
