package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"commission-intake/handler"
	"commission-intake/internal/app"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	h, err := newHandler(context.Background())
	if err != nil {
		slog.Error("intake startup failed", "err", err)
		os.Exit(1)
	}
	lambda.Start(h.Handle)
}

// newHandler builds the request handler from the Lambda environment.
func newHandler(ctx context.Context) (*handler.Handler, error) {
	cfg, err := app.FromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	slog.Info("intake config loaded",
		"table", cfg.RecordsTable,
		"param_prefix", cfg.ParamPrefix,
		"max_message_length", cfg.MaxMessageLength,
		"contact_prompt_after", cfg.ContactPromptAfter,
	)

	awsCfg, err := app.LoadAWS(ctx)
	if err != nil {
		return nil, err
	}
	intake, err := app.NewIntakeService(awsCfg, cfg)
	if err != nil {
		return nil, err
	}
	return handler.NewHandler(intake)
}
