package lifecycle

import (
	"context"
	"fmt"

	"github.com/angelmondragon/credstock/internal/alerts"
)

const StockCheckJobName = "stock-check"

// Evaluator runs one alert evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context) (alerts.CheckResult, error)
}

func NewStockCheckJob(evaluator Evaluator) (Job, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator required")
	}
	return &stockCheckJob{evaluator: evaluator}, nil
}

type stockCheckJob struct {
	evaluator Evaluator
}

func (j *stockCheckJob) Name() string { return StockCheckJobName }

func (j *stockCheckJob) Run(ctx context.Context) error {
	_, err := j.evaluator.Evaluate(ctx)
	return err
}
