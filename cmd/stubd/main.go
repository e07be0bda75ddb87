package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pagereach/cps-client/internal/stub"
)

// stubd runs the in-memory stand-in backend so the cps CLI can be exercised
// without the production crawler. All state lives in the process; restarting
// wipes it.
func main() {
	var (
		addr        = flag.String("addr", "", "listen address (default $STUBD_ADDR or :8080)")
		tickEvery   = flag.Duration("tick", 200*time.Millisecond, "simulated per-URL processing time")
		successRate = flag.Float64("success-rate", 0.9, "fraction of URLs that succeed")
	)
	flag.Parse()

	// .env is optional; OS environment still applies.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	listen := *addr
	if listen == "" {
		listen = os.Getenv("STUBD_ADDR")
	}
	if listen == "" {
		listen = ":8080"
	}

	server := stub.NewServer(stub.Options{
		TickEvery:   *tickEvery,
		SuccessRate: *successRate,
		Logger:      logger,
	})

	logger.Info("stub backend running", zap.String("addr", listen))
	if err := http.ListenAndServe(listen, server.Router()); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
