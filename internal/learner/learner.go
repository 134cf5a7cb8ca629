// Package learner runs the feedback-driven strategy evolution cycle: pull
// recent search feedback, ask the model what to change, apply deprecations
// and new strategies to the store.
package learner

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plantedfoods/discovery-pipeline/internal/metrics"
	"github.com/plantedfoods/discovery-pipeline/internal/model"
	"github.com/plantedfoods/discovery-pipeline/internal/strategy"
	"github.com/plantedfoods/discovery-pipeline/internal/venue"
	"github.com/plantedfoods/discovery-pipeline/pkg/aiclient"
)

const (
	// DefaultLookbackDays is how far back feedback is pulled.
	DefaultLookbackDays = 7
	// minFeedbackRecords is the floor below which a cycle is skipped; a
	// handful of records is noise, not signal.
	minFeedbackRecords = 10
	// newStrategyBaseRate is the neutral starting success rate for
	// model-synthesized strategies.
	newStrategyBaseRate = 50
)

// Advisor is the LLM operation the learner depends on.
type Advisor interface {
	LearnFromFeedback(ctx context.Context, feedback, strategies any) (aiclient.LearningResult, error)
}

// Learner applies model-recommended strategy changes.
type Learner struct {
	feedback   venue.FeedbackStore
	strategies strategy.Store
	ai         Advisor
	lookback   int
}

// New creates a Learner with the default lookback window.
func New(feedback venue.FeedbackStore, strategies strategy.Store, ai Advisor) *Learner {
	return &Learner{
		feedback:   feedback,
		strategies: strategies,
		ai:         ai,
		lookback:   DefaultLookbackDays,
	}
}

// WithLookback overrides the feedback window in days.
func (l *Learner) WithLookback(days int) *Learner {
	l.lookback = days
	return l
}

// Learn runs one learning cycle and reports every change applied or observed.
func (l *Learner) Learn(ctx context.Context) ([]model.LearnedPattern, error) {
	feedback, err := l.feedback.GetForLearning(ctx, l.lookback)
	if err != nil {
		return nil, eris.Wrap(err, "learner: load feedback")
	}
	if len(feedback) < minFeedbackRecords {
		zap.L().Info("not enough feedback to learn from",
			zap.Int("records", len(feedback)),
			zap.Int("required", minFeedbackRecords),
		)
		return nil, nil
	}

	strategies, err := l.strategies.GetAll(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "learner: load strategies")
	}

	result, err := l.ai.LearnFromFeedback(ctx, feedback, strategies)
	if err != nil {
		return nil, eris.Wrap(err, "learner: model analysis")
	}

	var patterns []model.LearnedPattern

	for _, update := range result.StrategyUpdates {
		switch update.Action {
		case aiclient.ActionDeprecate:
			applied := true
			if err := l.strategies.Deprecate(ctx, update.StrategyID, update.Reason); err != nil {
				zap.L().Warn("deprecation failed",
					zap.String("strategy_id", update.StrategyID),
					zap.Error(err),
				)
				applied = false
			}
			patterns = append(patterns, model.LearnedPattern{
				Type:        "deprecation",
				Description: fmt.Sprintf("deprecate %s: %s", update.StrategyID, update.Reason),
				Confidence:  newStrategyBaseRate,
				Applied:     applied,
			})
		case aiclient.ActionBoost:
			// Boosting is already expressed through the success-rate
			// mechanism; record the observation without acting.
			patterns = append(patterns, model.LearnedPattern{
				Type:        "boost",
				Description: fmt.Sprintf("boost %s: %s", update.StrategyID, update.Reason),
				Confidence:  newStrategyBaseRate,
				Applied:     false,
			})
		default:
			zap.L().Warn("unknown strategy update action", zap.String("action", update.Action))
		}
	}

	for _, ns := range result.NewStrategies {
		created, err := l.strategies.Create(ctx, model.Strategy{
			Platform:    ns.Platform,
			Country:     ns.Country,
			Template:    ns.Template,
			SuccessRate: newStrategyBaseRate,
			Tags:        []string{"high-precision"},
			Origin:      model.StrategyOriginAgent,
		})
		applied := err == nil
		if err != nil {
			zap.L().Warn("new strategy creation failed",
				zap.String("template", ns.Template),
				zap.Error(err),
			)
		} else {
			metrics.StrategiesCreatedTotal.Inc()
			zap.L().Info("created strategy",
				zap.String("id", created.ID),
				zap.String("template", ns.Template),
				zap.String("platform", ns.Platform),
				zap.String("country", ns.Country),
			)
		}
		patterns = append(patterns, model.LearnedPattern{
			Type:        "new_strategy",
			Description: fmt.Sprintf("new template for %s/%s: %s", ns.Platform, ns.Country, ns.Template),
			Confidence:  newStrategyBaseRate,
			Applied:     applied,
		})
	}

	for _, insight := range result.Insights {
		patterns = append(patterns, model.LearnedPattern{
			Type:        "insight",
			Description: insight,
			Confidence:  newStrategyBaseRate,
			Applied:     false,
		})
	}

	return patterns, nil
}
