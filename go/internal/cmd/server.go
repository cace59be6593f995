package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/quizduel/go/internal/results"
	"github.com/mcdev12/quizduel/go/internal/sessions"
)

func setupServer(port string, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services)
	setupHealthCheck(mux)

	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Session RPCs
	sessionPath, sessionHandler := sessions.NewHandler(services.Sessions)
	mux.Handle(sessionPath, sessionHandler)

	// Participant sockets
	services.Gateway.RegisterRoutes(mux)

	// Archived results
	if services.Results != nil {
		results.Routes(mux, services.Results)
	}

	// Session stats from view events
	mux.Handle("/stats", services.Tracker)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
