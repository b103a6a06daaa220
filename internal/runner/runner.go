// Package runner drives the scheduled jobs: the periodic tier recalculation
// and the weekly citation decay cycle.
package runner

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shelfline/governance/internal/governance"
	"github.com/shelfline/governance/internal/models"
)

// CitationSource supplies citation audit scores for the Hero population.
// Implementations wrap whatever audit tool ran this week; a nil result map
// means the audit produced nothing and every Hero scores zero.
type CitationSource interface {
	WeeklyScores(ctx context.Context) (map[string]float64, models.QuorumStatus, error)
}

type Config struct {
	RecalcInterval time.Duration
	DecayInterval  time.Duration
	Actor          string
	Logger         *log.Logger
}

// RunRecalc recalculates all tiers on the configured interval until ctx is
// cancelled.
func RunRecalc(ctx context.Context, svc *governance.Service, cfg Config) {
	interval := cfg.RecalcInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[recalc] ", log.LstdFlags)
	}
	actor := cfg.Actor
	if actor == "" {
		actor = "system:scheduler"
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		changes, err := svc.RecalculateAllTiers(ctx, governance.Actor{
			Name: actor,
			Role: models.RoleAdmin,
		})
		if err != nil {
			logger.Printf("recalculate tiers: %v", err)
			continue
		}
		logger.Printf("recalculation finished changed=%d", len(changes))
	}
}

// RunDecay runs the weekly decay cycle on the configured interval until ctx
// is cancelled. Each cycle gets a fresh run id so a crashed cycle can be
// replayed without double-counting weeks.
func RunDecay(ctx context.Context, svc *governance.Service, src CitationSource, cfg Config) {
	interval := cfg.DecayInterval
	if interval <= 0 {
		interval = 7 * 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[decay] ", log.LstdFlags)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		scores, quorum, err := src.WeeklyScores(ctx)
		if err != nil {
			logger.Printf("fetch citation scores: %v", err)
			continue
		}
		runID := uuid.NewString()
		changed, err := svc.ProcessDecayCycle(ctx, runID, scores, quorum)
		if err != nil {
			logger.Printf("decay cycle %s: %v", runID, err)
			continue
		}
		logger.Printf("decay cycle %s finished changed=%d quorum=%s", runID, changed, quorum)
	}
}
