// Package pipeline runs deploy stages in a fixed order.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Step is a single named stage of a deploy.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Result summarizes a run. Steps holds only the steps that were started, in
// execution order.
type Result struct {
	Pipeline string       `json:"pipeline"`
	Steps    []StepResult `json:"steps"`
	Err      error        `json:"-"`
}

// Pipeline executes its steps strictly in the order given. The first failure
// stops the run; later steps are never started and completed steps are not
// rolled back.
type Pipeline struct {
	name  string
	steps []Step
}

// New creates a Pipeline with the given name and ordered steps.
func New(name string, steps ...Step) *Pipeline {
	return &Pipeline{
		name:  name,
		steps: steps,
	}
}

// Run executes the steps in order and returns a Result describing what ran.
// On failure the returned error names the step that failed.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	logger := zerolog.Ctx(ctx)
	result := &Result{Pipeline: p.name}

	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result, err
		}

		logger.Info().
			Str("pipeline", p.name).
			Str("step", step.Name).
			Int("position", i+1).
			Int("total", len(p.steps)).
			Msg("Starting step")

		begin := time.Now()
		err := step.Run(ctx)
		elapsed := time.Since(begin)

		result.Steps = append(result.Steps, StepResult{
			Name:     step.Name,
			Duration: elapsed,
		})

		if err != nil {
			result.Err = fmt.Errorf("%s: %w", step.Name, err)
			logger.Error().
				Err(err).
				Str("pipeline", p.name).
				Str("step", step.Name).
				Dur("duration", elapsed).
				Msg("Step failed")
			return result, result.Err
		}

		logger.Info().
			Str("pipeline", p.name).
			Str("step", step.Name).
			Dur("duration", elapsed).
			Msg("Step completed")
	}

	return result, nil
}
