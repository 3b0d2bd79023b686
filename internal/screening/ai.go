package screening

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fentz26/litscreen/internal/delegate"
	"github.com/fentz26/litscreen/internal/models"
)

// Reason prefixes owned by the AI stage.
const (
	PrefixAI       = "AI: "
	PrefixAIVerify = "AI-Verify: "
)

// DefaultCallTimeout bounds one delegate call.
const DefaultCallTimeout = 60 * time.Second

// AIOptions configures the semantic stage.
type AIOptions struct {
	Criteria string
	// Topic is the scope asked about during verification. Criteria is used
	// when empty.
	Topic       string
	Verify      bool
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// ProgressFunc receives coarse progress while candidates are screened.
type ProgressFunc func(percent int, message string)

// AICounts summarizes one AI pass.
type AICounts struct {
	Candidates           int
	Excluded             int
	VerificationExcluded int
	Errors               int
}

// Outcome is the result of asking the delegate about one candidate: either
// a decision (plus an optional verification) or an error.
type Outcome struct {
	Decision     delegate.Decision
	Verification *delegate.Verification
	Err          error
}

// AIStage offers every record that is not yet excluded to d, in order and
// one at a time. A failing call leaves the record kept and moves on. The
// only error returned is ctx's, when the run is cancelled.
func AIStage(ctx context.Context, records []models.Record, d delegate.Delegate, opts AIOptions, progress ProgressFunc) (AICounts, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Topic == "" {
		opts.Topic = opts.Criteria
	}

	var candidates []int
	for i := range records {
		if !records[i].Exclusion.Excluded {
			candidates = append(candidates, i)
		}
	}

	c := AICounts{Candidates: len(candidates)}
	n := len(candidates)
	for k, idx := range candidates {
		if err := ctx.Err(); err != nil {
			return c, err
		}
		if progress != nil {
			progress(100*k/n, fmt.Sprintf("AI Screening: %d/%d", k+1, n))
		}

		r := &records[idx]
		out := evaluate(ctx, d, r, opts)
		if out.Err != nil && ctx.Err() != nil {
			return c, ctx.Err()
		}
		if out.Err != nil {
			log.Warn("ai screening failed, keeping record",
				"record_id", r.ID, "title", r.Title, "err", out.Err)
		}
		applyOutcome(r, out, &c)
	}
	return c, nil
}

// evaluate runs classify and, when asked and the record was not excluded,
// verify. Each call has its own timeout.
func evaluate(ctx context.Context, d delegate.Delegate, r *models.Record, opts AIOptions) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	dec, err := d.Classify(callCtx, r.Title, r.Abstract, opts.Criteria)
	cancel()
	if err != nil {
		return Outcome{Err: fmt.Errorf("classify: %w", err)}
	}
	out := Outcome{Decision: dec}
	if dec.Exclude || !opts.Verify {
		return out
	}

	callCtx, cancel = context.WithTimeout(ctx, opts.CallTimeout)
	v, err := d.Verify(callCtx, r.Title, r.Abstract, opts.Topic)
	cancel()
	if err != nil {
		out.Err = fmt.Errorf("verify: %w", err)
		return out
	}
	out.Verification = &v
	return out
}

// applyOutcome is the single policy for turning an Outcome into exclusion
// state. Errors never exclude.
func applyOutcome(r *models.Record, o Outcome, c *AICounts) {
	switch {
	case o.Decision.Exclude:
		reason := o.Decision.Reason
		if reason == "" {
			reason = delegate.DefaultReason
		}
		r.Exclude(PrefixAI + reason)
		c.Excluded++
	case o.Err != nil:
		c.Errors++
	case o.Verification != nil && !o.Verification.InScope:
		r.Exclude(fmt.Sprintf("%sout of scope (%s)", PrefixAIVerify, o.Verification.Confidence))
		c.VerificationExcluded++
	}
}
