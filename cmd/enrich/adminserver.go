package main

import (
	"context"
	"log"
	"net/http"
	"time"
)

// adminServerWrapper owns the admin HTTP server's listen/shutdown lifecycle,
// grounded on ai-infra/cmd/ai-infra-service/main.go's httpServer +
// waitForShutdown pattern.
type adminServerWrapper struct {
	addr    string
	handler http.Handler
	srv     *http.Server
}

func (a *adminServerWrapper) ListenAndServe() {
	a.srv = &http.Server{Addr: a.addr, Handler: a.handler}
	log.Printf("[admin] listening on %s", a.addr)
	if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[admin] server error: %v", err)
	}
}

func (a *adminServerWrapper) Shutdown() {
	if a.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		log.Printf("[admin] shutdown error: %v", err)
	}
}
