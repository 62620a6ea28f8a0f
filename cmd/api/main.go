package main

import (
	"context"
	"log"
	"time"

	"interview-backend/internal/interview"
	"interview-backend/internal/shared/config"
	"interview-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()
	r, interviewSvc := server.NewRouter(cfg)

	go reapLoop(interviewSvc)

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := r.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// reapLoop periodically fails pending quiz attempts abandoned by a crashed
// worker so their quota debit is credited back.
func reapLoop(svc *interview.Service) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := svc.ReapStalePending(ctx, interview.StalePendingAge); err != nil {
			log.Printf("reap stale pending: %v", err)
		}
		cancel()
	}
}
