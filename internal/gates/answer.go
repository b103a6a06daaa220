package gates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/similarity"
)

const (
	answerMinLen = 250
	answerMaxLen = 300

	// Brand saturation only matters in short blocks.
	brandSaturationLen = 400
	brandMaxMentions   = 3
)

// AnswerBlock (G4) enforces the answer-block contract: length, brand-name
// hygiene, the intent stem keyword, and the semantic-similarity check
// against the assigned cluster. Harvest SKUs carry no answer block and
// auto-pass with a note.
type AnswerBlock struct {
	// BrandName is the configured brand the block must not lead with.
	BrandName string

	// Scorer is the external similarity service; nil skips the semantic
	// check (e.g. no scorer deployed).
	Scorer similarity.Client

	// MinSimilarity is the pass threshold for the scorer result.
	MinSimilarity float64
}

func (AnswerBlock) ID() string   { return "G4" }
func (AnswerBlock) Name() string { return "answer_block" }

func (g AnswerBlock) Evaluate(ctx context.Context, sku *models.SKU) models.GateOutcome {
	if sku.Tier == models.TierHarvest {
		return passNote(g.ID(), g.Name(), "answer block not required for harvest tier")
	}

	text := strings.TrimSpace(sku.AnswerBlock)
	length := utf8.RuneCountInString(text)
	if length < answerMinLen {
		return fail(g.ID(), g.Name(),
			fmt.Sprintf("answer block too short: %d characters, minimum %d", length, answerMinLen), true)
	}
	if length > answerMaxLen {
		return fail(g.ID(), g.Name(),
			fmt.Sprintf("answer block too long: %d characters, maximum %d", length, answerMaxLen), true)
	}

	if g.BrandName != "" {
		lower := strings.ToLower(text)
		brand := strings.ToLower(g.BrandName)
		if strings.HasPrefix(lower, brand) {
			return fail(g.ID(), g.Name(), "answer block must not open with the brand name", true)
		}
		if strings.Count(lower, brand) >= brandMaxMentions && length < brandSaturationLen {
			return fail(g.ID(), g.Name(),
				fmt.Sprintf("brand name appears %d+ times in a block under %d characters", brandMaxMentions, brandSaturationLen), true)
		}
	}

	if stem := IntentStem(sku.PrimaryIntent); stem != "" {
		if !strings.Contains(strings.ToLower(text), stem) {
			return fail(g.ID(), g.Name(),
				fmt.Sprintf("answer block does not address the %s intent (missing %q)", sku.PrimaryIntent, stem), true)
		}
	}

	if g.Scorer != nil && sku.ClusterID != "" {
		description := sku.LongDescription
		if strings.TrimSpace(description) == "" {
			description = text
		}
		result, err := g.Scorer.Score(ctx, similarity.Request{
			Description: description,
			ClusterID:   sku.ClusterID,
		})
		if err != nil {
			// Fail open: the scorer being down blocks publish but must not
			// hard-fail validation. The degraded flag drives the Degraded
			// status and automatic retry.
			reason := "similarity scorer unavailable"
			if !errors.Is(err, similarity.ErrUnavailable) {
				reason = fmt.Sprintf("similarity check failed: %v", err)
			}
			out := fail(g.ID(), g.Name(), reason, true)
			out.Metadata = map[string]interface{}{"degraded": true}
			return out
		}
		if !result.Valid || result.Similarity < g.MinSimilarity {
			out := fail(g.ID(), g.Name(),
				fmt.Sprintf("description does not match cluster %s: %s", sku.ClusterID, result.Reason), true)
			out.Metadata = map[string]interface{}{"similarity": result.Similarity}
			return out
		}
		out := pass(g.ID(), g.Name())
		out.Metadata = map[string]interface{}{"similarity": result.Similarity}
		return out
	}

	return pass(g.ID(), g.Name())
}
