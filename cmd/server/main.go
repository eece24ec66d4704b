package main

import (
	"log"

	"whiteboard/internal/server"
)

func main() {
	cfg := server.LoadConfig()

	store, err := server.OpenStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open move store: %v", err)
	}
	defer store.Close()

	srv, err := server.New(cfg, store)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	if err := srv.Run(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
