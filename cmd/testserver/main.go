// Command testserver serves a fake OPD doctor surface whose targets and
// points converge after configurable delays.
//
// Usage:
//
//	testserver [flags]
//
// Flags:
//
//	-port          Port to listen on (default: 8080)
//	-host          Host to bind to (default: localhost)
//	-propagation   Delay before a target reaches /sp/home (default: 5s)
//	-accrual       Delay before granted points show up (default: 3s)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"opdflow/internal/logging"
	"opdflow/testserver"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	propagation := flag.Duration("propagation", 5*time.Second, "delay before a target reaches /sp/home")
	accrual := flag.Duration("accrual", 3*time.Second, "delay before granted points show up")
	verbose := flag.Bool("verbose", false, "log every request")
	flag.Parse()

	logger := logging.NewWriter(os.Stderr, logging.Options{Verbose: *verbose, Console: true})
	defer func() { _ = logger.Sync() }()

	server := testserver.NewServer(testserver.Options{
		PropagationDelay: *propagation,
		AccrualDelay:     *accrual,
	})
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("OPD Test Server")
	fmt.Println("===============")
	fmt.Printf("Listening on http://%s\n\n", addr)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health                     - Health check")
	fmt.Println("  POST /api/messages               - Create a message {title, opening_action}")
	fmt.Println("  POST /api/messages/{id}/targets  - Target doctors {system_codes}")
	fmt.Println("  GET  /sp/home                    - Propagated titles (?system_code=)")
	fmt.Println("  GET  /api/points/{systemCode}    - Granted actions")
	fmt.Println("  GET  /status/{code}              - Return specific status code")
	fmt.Println("  GET  /delay/{ms}                 - Delay response by milliseconds")
	fmt.Println()

	srv := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.RequestURI()))
			server.Handler().ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
