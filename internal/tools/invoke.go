package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alula-collections/alula-go/internal/logging"
)

// invoke runs fn on behalf of an Eino tool call: it reports the outcome to
// obs, hands the artifacts to the request's collector and returns the text.
func invoke(ctx context.Context, name string, obs Observer, fn func(context.Context) (Result, error)) (string, error) {
	log := logging.FromContext(ctx)
	start := time.Now()
	res, err := fn(ctx)
	elapsed := time.Since(start)

	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeError
	case len(res.Artifacts) == 0:
		outcome = OutcomeEmpty
	}
	if obs != nil {
		obs(name, outcome, elapsed)
	}

	if err != nil {
		log.Error("tools: call failed",
			slog.String("tool", name),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	if c := CollectorFrom(ctx); c != nil {
		c.Add(name, res.Artifacts)
	}
	log.Info("tools: call complete",
		slog.String("tool", name),
		slog.String("outcome", outcome),
		slog.Int("artifacts", len(res.Artifacts)),
		slog.Duration("elapsed", elapsed),
	)
	return res.Text, nil
}

// decodeArgs unmarshals the model-supplied JSON arguments into dst.
func decodeArgs(name, argumentsInJSON string, dst any) error {
	if err := json.Unmarshal([]byte(argumentsInJSON), dst); err != nil {
		return fmt.Errorf("%s: invalid input: %w", name, err)
	}
	return nil
}
