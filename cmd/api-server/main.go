package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/joho/godotenv"

	"github.com/sre-norns/skald/pkg/gateway"
	"github.com/sre-norns/skald/pkg/grace"
)

var appCli struct {
	DatabaseURL string        `help:"Connection string for the record store" env:"DATABASE_URL"`
	JwtSecret   string        `help:"Secret used to sign and verify API tokens" env:"JWT_SECRET"`
	TokenTTL    time.Duration `help:"Lifetime of issued API tokens" env:"TOKEN_TTL" default:"24h"`
	Port        int           `help:"Port for the API server to listen on" env:"PORT" default:"4000"`
}

func main() {
	// Optional .env for local development; real deployments use the environment
	_ = godotenv.Load()

	kong.Parse(&appCli,
		kong.Name("api-server"),
		kong.Description("Skald record gateway API server"),
	)

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	// Note: no store connection is made here. Resources come up lazily on
	// the first request so a cold process start stays cheap.
	gw := gateway.New(gateway.Config{
		DatabaseURL: appCli.DatabaseURL,
		JWTSecret:   appCli.JwtSecret,
		TokenTTL:    appCli.TokenTTL,
	}, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", appCli.Port),
		Handler: gw,
	}

	logger.Log("msg", "listening", "addr", srv.Addr)
	grace.ExitOrLog(grace.Serve(srv))
}
