// flarecastd is the IBD flare-risk prediction service: it loads the trained
// model bundle, serves the prediction API, and exposes Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/medivuehealth/flarecast/internal/api"
	"github.com/medivuehealth/flarecast/internal/cfg"
	"github.com/medivuehealth/flarecast/internal/metrics"
	"github.com/medivuehealth/flarecast/internal/ml"
	"github.com/medivuehealth/flarecast/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env")
	}

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, settings)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init failed")
	}
	defer st.Close()

	classifier := ml.NewClassifier()
	if err := loadModel(classifier, settings); err != nil {
		if !settings.FallbackOK {
			log.Fatal().Err(err).Msg("model load failed and fallback is disabled")
		}
		log.Warn().Err(err).Msg("model load failed, serving heuristic fallback")
	}

	validator := ml.NewValidator(st, classifier)
	m := metrics.New()
	go trackModelAge(ctx, classifier, m)

	apiServer := api.NewServer(settings, st, classifier, validator, m)
	defer apiServer.Close()

	server := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", settings.MetricsPort).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	go func() {
		log.Info().Str("addr", settings.ListenAddr).Msg("api server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server shutdown")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown")
	}
}

func openStore(ctx context.Context, settings cfg.Settings) (store.Store, error) {
	switch settings.StorageBackend {
	case "postgres":
		return store.OpenPostgres(ctx, settings.DatabaseURL)
	default:
		return store.OpenBolt(settings.DataPath)
	}
}

// loadModel binds the configured bundle, preferring an explicit path over
// the registry's active version.
func loadModel(classifier *ml.Classifier, settings cfg.Settings) error {
	if settings.BundlePath != "" {
		return classifier.Reload(settings.BundlePath)
	}
	registry, err := ml.NewRegistry(settings.ModelsDir)
	if err != nil {
		return err
	}
	active, ok := registry.Active()
	if !ok {
		return fmt.Errorf("no active model version in %s", settings.ModelsDir)
	}
	return classifier.Reload(active.Path)
}

func trackModelAge(ctx context.Context, classifier *ml.Classifier, m *metrics.Metrics) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := classifier.Info()
			if err != nil {
				continue
			}
			m.ModelAgeSeconds.Set(time.Since(info.TrainedAt).Seconds())
		}
	}
}
