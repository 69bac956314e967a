package facematch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/consensus"
	"github.com/kozaktomas/facegate/internal/features"
)

// Recognize identifies the face in img among the enrolled profiles. The
// result is always non-nil; on rejection the error wraps the reason and the
// result carries the diagnostics gathered up to that point.
func (e *Engine) Recognize(ctx context.Context, img *image.Gray) (*RecognitionResult, error) {
	start := time.Now()
	res := &RecognitionResult{Stage: StageReceived, Tier: consensus.TierRejected}

	err := e.recognize(ctx, img, res)
	if err != nil {
		res.Accepted = false
		res.Identity = ""
		res.Tier = consensus.TierRejected
		res.Reason = err.Error()
		e.log.Debug("recognition rejected",
			zap.String("code", Code(err)),
			zap.String("stage", string(res.Stage)),
			zap.Float64("aggregated", res.AggregatedScore),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return res, err
	}

	e.log.Debug("recognition accepted",
		zap.String("identity", res.Identity),
		zap.Stringer("tier", res.Tier),
		zap.Float64("aggregated", res.AggregatedScore),
		zap.Int("candidates", len(res.Candidates)),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

func (e *Engine) recognize(ctx context.Context, img *image.Gray, res *RecognitionResult) error {
	n, err := e.store.Count(ctx)
	if err != nil {
		return storeError(ctx, "count profiles", err)
	}
	if n == 0 {
		return ErrNoEnrolledProfiles
	}

	probe, err := e.prepare(ctx, img, res)
	if err != nil {
		return err
	}
	return e.decide(ctx, probe, res, "")
}

// decide scores probe against the enrolled profiles, skipping exclude, and
// fills in the decision.
func (e *Engine) decide(ctx context.Context, probe features.Bundle, res *RecognitionResult, exclude string) error {
	profiles, err := e.store.List(ctx)
	if err != nil {
		return storeError(ctx, "list profiles", err)
	}
	if exclude != "" {
		kept := profiles[:0:0]
		for _, p := range profiles {
			if p.Identity != exclude {
				kept = append(kept, p)
			}
		}
		profiles = kept
	}
	if len(profiles) == 0 {
		return ErrNoEnrolledProfiles
	}
	if err := e.checkLayouts(profiles); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	candidates := e.shortlist(ctx, probe, profiles)
	verdicts := make([]consensus.Verdict, 0, len(candidates))
	for _, p := range candidates {
		score, err := e.comparer.Compare(p.Identity, probe, p.Bundle)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfigurationMismatch, err)
		}
		verdicts = append(verdicts, e.validator.Evaluate(score))
	}
	res.Stage = StageScored

	res.Candidates = consensus.Rank(verdicts)
	best, accepted := consensus.Select(res.Candidates)
	res.Best = &best
	res.AggregatedScore = best.Score.Aggregated
	res.Stage = StageDecided
	if !accepted {
		return fmt.Errorf("%w: best candidate %s: %s", ErrInsufficientConsensus, best.Identity(), best.Reason)
	}

	res.Accepted = true
	res.Identity = best.Identity()
	res.Tier = best.Tier
	res.Reason = best.Reason
	return nil
}

// Verify checks whether img shows the claimed identity. The claim holds only
// when recognition accepts that identity as the best match. A different
// accepted identity is a normal negative outcome, not an error.
func (e *Engine) Verify(ctx context.Context, claimed string, img *image.Gray) (*VerifyResult, error) {
	id, err := NormalizeIdentity(claimed)
	vr := &VerifyResult{Claimed: id}
	if err != nil {
		vr.Claimed = claimed
		return vr, err
	}

	p, err := e.store.Get(ctx, id)
	if err != nil {
		return vr, storeError(ctx, "get profile", err)
	}
	if p == nil {
		return vr, fmt.Errorf("%w: %s", ErrUnknownIdentity, id)
	}

	res, err := e.Recognize(ctx, img)
	vr.Result = res
	for i := range res.Candidates {
		if res.Candidates[i].Identity() == id {
			v := res.Candidates[i]
			vr.Claim = &v
			break
		}
	}
	if err != nil {
		return vr, err
	}
	vr.Verified = res.Accepted && res.Identity == id

	e.log.Info("verification",
		zap.String("claimed", id),
		zap.Bool("verified", vr.Verified),
		zap.String("matched", res.Identity),
		zap.Stringer("tier", res.Tier))
	return vr, nil
}

// checkDuplicate fails with ErrDuplicateFace when probe is accepted as an
// identity other than id.
func (e *Engine) checkDuplicate(ctx context.Context, id string, probe features.Bundle) error {
	res := &RecognitionResult{Stage: StageFeaturesExtracted}
	err := e.decide(ctx, probe, res, id)
	switch {
	case err == nil:
		return fmt.Errorf("%w: matches %s at tier %s", ErrDuplicateFace, res.Identity, res.Tier)
	case errors.Is(err, ErrNoEnrolledProfiles), errors.Is(err, ErrInsufficientConsensus):
		return nil
	default:
		return err
	}
}
