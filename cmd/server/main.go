package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/challenge"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/internal/obs"
	"github.com/jrsteele09/go-session-auth/server"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			log.Fatal().Err(err).Str("key", cfgErr.Key).Msg("invalid configuration")
		}
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	logger := obs.NewLogger(obs.LogConfig{
		Level:  c.GetLogLevel(),
		Pretty: c.GetLogPretty(),
		App:    c.GetAppName(),
		Env:    c.GetEnv(),
	})
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := obs.SetupOTel(ctx, obs.OTELConfig{
		Enable:      c.GetOTELEnabled(),
		Endpoint:    c.GetOTELEndpoint(),
		ServiceName: c.GetAppName(),
		SampleRatio: c.GetOTELSampleRatio(),
	})
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer shutdownSafe("otel", telemetry.Shutdown, logger)

	handler, cleanup, err := build(ctx, c, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listenAndServe(srv, logger) })
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv)
	})
	return g.Wait()
}

// build wires the stores, the token and challenge machinery and the HTTP
// server. The returned cleanup releases the stores.
func build(ctx context.Context, c config.Config, logger zerolog.Logger) (http.Handler, func(), error) {
	codec, err := token.NewCodec(token.KindConfigsFrom(c))
	if err != nil {
		return nil, nil, err
	}
	hasher, err := users.NewHasher(c.GetPasswordHashRounds())
	if err != nil {
		return nil, nil, err
	}
	policy, err := users.PolicyByName(c.GetPasswordProfile())
	if err != nil {
		return nil, nil, err
	}

	st, err := openStores(ctx, c, codec.TTL(token.KindChallenge), logger)
	if err != nil {
		return nil, nil, err
	}
	if err := server.SeedIdentities(ctx, st.identities, hasher, c.GetSeedIdentities(), logger); err != nil {
		st.close()
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	machine, err := challenge.NewMachine(st.challenges, st.identities, codec, hasher,
		challenge.WithPolicy(policy),
		challenge.WithLogger(logger),
		challenge.WithMetrics(metrics),
	)
	if err != nil {
		st.close()
		return nil, nil, err
	}
	service, err := auth.NewAuthorizationService(
		auth.Repos{Identities: st.identities, Sessions: st.sessions},
		codec, machine, hasher,
		auth.WithLogger(logger),
		auth.WithMetrics(metrics),
	)
	if err != nil {
		st.close()
		return nil, nil, err
	}
	gateway, err := auth.NewGateway(codec, st.identities, auth.WithGatewayMetrics(metrics))
	if err != nil {
		st.close()
		return nil, nil, err
	}

	srv, err := server.New(c, server.Deps{
		Auth:           service,
		Gateway:        gateway,
		Logger:         logger,
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health:         st.ping,
	})
	if err != nil {
		st.close()
		return nil, nil, err
	}
	return otelhttp.NewHandler(srv, "session-auth"), st.close, nil
}

func listenAndServe(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func shutdownSafe(name string, fn func(context.Context) error, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Error().Err(err).Msg(name + " shutdown failed")
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
