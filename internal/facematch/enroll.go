package facematch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/database"
)

// defaultBatchConcurrency is the worker count of EnrollBatch when unset.
const defaultBatchConcurrency = 4

// Enroll extracts the face in img and stores it as the profile of identity,
// replacing any earlier profile of that identity.
func (e *Engine) Enroll(ctx context.Context, identity string, img *image.Gray, sourceRef string) (*database.FaceProfile, error) {
	id, err := NormalizeIdentity(identity)
	if err != nil {
		return nil, err
	}

	res := &RecognitionResult{Stage: StageReceived}
	bundle, err := e.prepare(ctx, img, res)
	if err != nil {
		e.log.Debug("enrolment rejected",
			zap.String("identity", id),
			zap.String("code", Code(err)),
			zap.String("stage", string(res.Stage)),
			zap.Error(err))
		return nil, err
	}

	if e.profile.RejectDuplicates {
		if err := e.checkDuplicate(ctx, id, bundle); err != nil {
			e.log.Info("enrolment rejected", zap.String("identity", id), zap.Error(err))
			return nil, err
		}
	}

	p := database.FaceProfile{
		Identity:        id,
		Bundle:          bundle,
		EnrolledAt:      e.now().UTC(),
		SourceReference: sourceRef,
	}
	if err := e.store.Put(ctx, p); err != nil {
		return nil, storeError(ctx, "put profile", err)
	}
	e.invalidateShortlist()

	e.log.Info("enrolled profile",
		zap.String("identity", id),
		zap.String("source", sourceRef),
		zap.Float64("quality", res.Quality.Score))
	return &p, nil
}

// Revoke removes the profile of identity. It reports false without error
// when the identity was not enrolled.
func (e *Engine) Revoke(ctx context.Context, identity string) (bool, error) {
	id, err := NormalizeIdentity(identity)
	if err != nil {
		return false, err
	}
	removed, err := e.store.Delete(ctx, id)
	if err != nil {
		return false, storeError(ctx, "delete profile", err)
	}
	if removed {
		e.invalidateShortlist()
		e.log.Info("revoked profile", zap.String("identity", id))
	}
	return removed, nil
}

type batchResult struct {
	index   int
	profile *database.FaceProfile
	err     error
}

// EnrollBatch enrols every request with a bounded worker pool. Failures are
// collected per item and never stop the batch; a cancelled context fails
// the items that have not started yet.
func (e *Engine) EnrollBatch(ctx context.Context, reqs []EnrollRequest, opts BatchOptions) *BatchReport {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	report := &BatchReport{BatchID: uuid.NewString()}
	start := time.Now()
	e.log.Info("batch enrolment started",
		zap.String("batch_id", report.BatchID),
		zap.Int("items", len(reqs)),
		zap.Int("concurrency", concurrency))

	// Create channels for work distribution and results
	resultsChan := make(chan batchResult, len(reqs))
	semaphore := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	var progressMu sync.Mutex
	completed := 0

	for i, req := range reqs {
		wg.Add(1)
		go func(idx int, req EnrollRequest) {
			defer wg.Done()

			// Acquire semaphore
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			r := batchResult{index: idx}
			if err := ctx.Err(); err != nil {
				r.err = err
			} else {
				r.profile, r.err = e.enrollRequest(ctx, req)
			}
			resultsChan <- r

			if opts.OnProgress != nil {
				progressMu.Lock()
				completed++
				opts.OnProgress(ProgressInfo{Current: completed, Total: len(reqs), Identity: req.Identity, Err: r.err})
				progressMu.Unlock()
			}
		}(i, req)
	}

	// Wait for all goroutines to complete and close results channel
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Collect results maintaining order
	results := make([]batchResult, len(reqs))
	for r := range resultsChan {
		results[r.index] = r
	}

	for i, r := range results {
		report.Processed++
		if r.err != nil {
			report.Failed++
			report.Errors = append(report.Errors, BatchItemError{
				Index:           i,
				Identity:        reqs[i].Identity,
				SourceReference: reqs[i].SourceReference,
				Code:            Code(r.err),
				Err:             r.err,
				Message:         r.err.Error(),
			})
			continue
		}
		report.Succeeded++
		report.Profiles = append(report.Profiles, *r.profile)
	}

	e.log.Info("batch enrolment finished",
		zap.String("batch_id", report.BatchID),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(start)))
	return report
}

func (e *Engine) enrollRequest(ctx context.Context, req EnrollRequest) (*database.FaceProfile, error) {
	if req.Open == nil {
		return nil, fmt.Errorf("%w: no image source", ErrInvalidImage)
	}
	img, err := req.Open()
	if err != nil {
		if errors.Is(err, ErrInvalidImage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return e.Enroll(ctx, req.Identity, img, req.SourceReference)
}
