// flarectl is the operator CLI: it calls the running service (predict,
// outcome, validation, drift) and runs offline jobs (seed, train) against
// the embedded store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/medivuehealth/flarecast/internal/ml"
	"github.com/medivuehealth/flarecast/internal/pipeline"
	"github.com/medivuehealth/flarecast/internal/store"
	"github.com/medivuehealth/flarecast/internal/synth"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: flarectl <command> [flags]

commands:
  predict     -server URL -file observation.json [-user id]
  outcome     -server URL -prediction id -flare true|false [-severity N] [-duration days] [-notes text]
  validation  -server URL [-days N]
  drift       -server URL [-threshold T]
  seed        -data DIR [-n count] [-seed N]
  train       -data DIR -models DIR [-activate]
`)
	os.Exit(2)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "predict":
		err = cmdPredict(os.Args[2:])
	case "outcome":
		err = cmdOutcome(os.Args[2:])
	case "validation":
		err = cmdValidation(os.Args[2:])
	case "drift":
		err = cmdDrift(os.Args[2:])
	case "seed":
		err = cmdSeed(os.Args[2:])
	case "train":
		err = cmdTrain(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func client(server, token string) *resty.Client {
	c := resty.New().SetBaseURL(server).SetHeader("Content-Type", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return c
}

func printResponse(resp *resty.Response) error {
	fmt.Println(string(resp.Body()))
	if resp.IsError() {
		return fmt.Errorf("server returned %s", resp.Status())
	}
	return nil
}

func cmdPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "service base URL")
	file := fs.String("file", "", "path to observation JSON")
	user := fs.String("user", "cli", "user identifier")
	token := fs.String("token", os.Getenv("FLARECAST_TOKEN"), "bearer token")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("-file is required")
	}
	raw, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("parse %s: %w", *file, err)
	}
	body["user_id"] = *user

	resp, err := client(*server, *token).R().SetBody(body).Post("/api/v1/predict")
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func cmdOutcome(args []string) error {
	fs := flag.NewFlagSet("outcome", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "service base URL")
	prediction := fs.String("prediction", "", "prediction id")
	flare := fs.Bool("flare", false, "whether a flare occurred")
	severity := fs.Int("severity", 0, "flare severity 1-10")
	duration := fs.Int("duration", 0, "flare duration in days")
	notes := fs.String("notes", "", "free-text follow-up notes")
	token := fs.String("token", os.Getenv("FLARECAST_TOKEN"), "bearer token")
	fs.Parse(args)

	if *prediction == "" {
		return fmt.Errorf("-prediction is required")
	}
	resp, err := client(*server, *token).R().
		SetBody(map[string]any{
			"prediction_id": *prediction,
			"actual_flare":  *flare,
			"severity":      *severity,
			"duration_days": *duration,
			"notes":         *notes,
			"source":        "flarectl",
		}).
		Post("/api/v1/outcomes")
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func cmdValidation(args []string) error {
	fs := flag.NewFlagSet("validation", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "service base URL")
	days := fs.Int("days", 30, "window in days")
	token := fs.String("token", os.Getenv("FLARECAST_TOKEN"), "bearer token")
	fs.Parse(args)

	resp, err := client(*server, *token).R().
		SetQueryParam("days", fmt.Sprint(*days)).
		Get("/api/v1/model/validation")
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func cmdDrift(args []string) error {
	fs := flag.NewFlagSet("drift", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "service base URL")
	threshold := fs.Float64("threshold", 0.1, "per-metric drift threshold")
	token := fs.String("token", os.Getenv("FLARECAST_TOKEN"), "bearer token")
	fs.Parse(args)

	resp, err := client(*server, *token).R().
		SetQueryParam("threshold", fmt.Sprint(*threshold)).
		Get("/api/v1/model/drift")
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func cmdSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	dataPath := fs.String("data", "data", "embedded store directory")
	n := fs.Int("n", 500, "records to generate")
	seed := fs.Int64("seed", 1, "random seed")
	fs.Parse(args)

	st, err := store.OpenBolt(*dataPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	records := synth.New(*seed).Dataset(*n, 0.4)
	for _, r := range records {
		if err := st.AddTraining(ctx, r); err != nil {
			return err
		}
	}
	log.Info().Int("records", len(records)).Str("data", *dataPath).Msg("training data seeded")
	return nil
}

func cmdTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	dataPath := fs.String("data", "data", "embedded store directory")
	modelsDir := fs.String("models", "models", "model registry directory")
	activate := fs.Bool("activate", false, "activate the new version on success")
	seed := fs.Int64("seed", 1, "shuffle seed")
	fs.Parse(args)

	st, err := store.OpenBolt(*dataPath)
	if err != nil {
		return err
	}
	defer st.Close()

	registry, err := ml.NewRegistry(*modelsDir)
	if err != nil {
		return err
	}

	trainer := pipeline.NewTrainer(st, registry, pipeline.Config{Seed: *seed})
	result, err := trainer.Run(context.Background())
	if err != nil {
		return err
	}

	log.Info().
		Str("version", result.Version.Version).
		Float64("holdout_auc", result.Bundle.Model.Metrics.AUC).
		Msg("model trained")

	if *activate {
		if err := registry.Activate(result.Version.Version); err != nil {
			return err
		}
		log.Info().Str("version", result.Version.Version).Msg("model activated")
	}
	return nil
}
