package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"arcade-lobby/internal/auth"
	"arcade-lobby/internal/broadcast"
	"arcade-lobby/internal/catalog"
	"arcade-lobby/internal/gateway"
	"arcade-lobby/internal/history"
	"arcade-lobby/internal/presence"
	"arcade-lobby/internal/room"
)

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func listenAddrFromEnv() string {
	addr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if addr == "" {
		return ":8080"
	}
	return addr
}

func main() {
	cat, catalogMode, err := catalog.LoadFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to load catalog: %v", err)
	}
	authService, authMode, err := auth.NewServiceFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init auth service: %v", err)
	}
	defer authService.Close()
	historyService, historyMode, err := history.NewServiceFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init history service: %v", err)
	}
	defer historyService.Close()

	tracker := presence.NewTracker()
	hub := broadcast.NewHub()
	registry := room.NewRegistry(tracker, historyService, hub)
	registry.InitFromCatalog(cat)
	defer registry.Stop()

	gw := gateway.New(registry, hub, authService)
	authHTTP := auth.NewHTTPHandler(authService)
	historyHTTP := history.NewHTTPHandler(historyService, authService)

	router := mux.NewRouter()
	router.Use(loggingMiddleware)
	router.HandleFunc("/ws", gw.HandleWebSocket)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	authHTTP.RegisterRoutes(router)
	historyHTTP.RegisterRoutes(router)

	addr := listenAddrFromEnv()
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("[Server] Catalog mode: %s", catalogMode)
	log.Printf("[Server] Auth mode: %s", authMode)
	log.Printf("[Server] History mode: %s", historyMode)

	go func() {
		log.Printf("[Server] Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] Failed to start: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("[Server] Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[Server] Forced to shutdown: %v", err)
	}
	log.Println("[Server] Stopped")
}
