package facematch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/consensus"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/features"
	"github.com/kozaktomas/facegate/internal/imaging"
	"github.com/kozaktomas/facegate/internal/locator"
	"github.com/kozaktomas/facegate/internal/quality"
	"github.com/kozaktomas/facegate/internal/similarity"
)

// Engine recognises and enrols faces under one security profile. It is safe
// for concurrent use; the only shared state is the profile store and the
// lazily built shortlist index.
type Engine struct {
	profile   config.SecurityProfile
	store     database.ProfileStore
	locator   locator.Locator
	gate      *quality.Gate
	extractor *features.Extractor
	comparer  *similarity.Comparer
	validator *consensus.Validator
	log       *zap.Logger
	now       func() time.Time

	indexMu   sync.Mutex
	index     *database.ShortlistIndex
	indexPath string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithLocator sets the face detector. It is required: New fails without one.
func WithLocator(l locator.Locator) Option {
	return func(e *Engine) {
		if l != nil {
			e.locator = l
		}
	}
}

// WithClock overrides the enrolment timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithShortlistIndexPath persists the shortlist HNSW index at path so it
// survives restarts. Only used when the store cannot shortlist by itself.
func WithShortlistIndexPath(path string) Option {
	return func(e *Engine) {
		e.indexPath = path
	}
}

// New creates an engine for profile backed by store.
func New(profile config.SecurityProfile, store database.ProfileStore, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("profile store is required")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	extractor, err := features.NewExtractor(profile.Features)
	if err != nil {
		return nil, err
	}
	comparer, err := similarity.NewComparer(profile.Aggregation)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		profile:   profile,
		store:     store,
		gate:      quality.New(profile.Quality),
		extractor: extractor,
		comparer:  comparer,
		validator: consensus.New(profile.Consensus),
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.locator == nil {
		return nil, errors.New("face locator is required")
	}
	return e, nil
}

// Profile returns the security profile the engine runs with.
func (e *Engine) Profile() config.SecurityProfile {
	return e.profile
}

// Layout returns the feature layout every profile must be enrolled with.
func (e *Engine) Layout() features.Layout {
	return e.extractor.Layout()
}

// Store returns the profile store.
func (e *Engine) Store() database.ProfileStore {
	return e.store
}

// storeError wraps a store failure, keeping caller cancellation distinguishable.
func storeError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", ErrProfileStore, op, err)
}

// prepare runs an image through location, the quality gate and extraction,
// recording progress in res.
func (e *Engine) prepare(ctx context.Context, img *image.Gray, res *RecognitionResult) (features.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrNoFaceDetected)
	}

	boxes, err := e.locator.Locate(img)
	if err != nil {
		return nil, fmt.Errorf("%w: detector: %w", ErrNoFaceDetected, err)
	}
	box, ok := locator.SelectFace(boxes, img.Bounds(), e.profile.Padding)
	if !ok {
		return nil, ErrNoFaceDetected
	}
	res.Face = box
	res.Stage = StageLocated
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	crop := imaging.Crop(img, box)
	report, err := e.gate.Check(crop)
	res.Quality = &report
	if err != nil {
		return nil, err
	}
	res.Stage = StageQualityChecked
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bundle, err := e.extractor.Extract(crop)
	if err != nil {
		return nil, err
	}
	res.Stage = StageFeaturesExtracted
	return bundle, nil
}

// checkLayouts fails when any profile was enrolled with a different layout
// than the current extractor produces.
func (e *Engine) checkLayouts(profiles []database.FaceProfile) error {
	want := e.extractor.Layout()
	for _, p := range profiles {
		if got := p.Bundle.Layout(); !got.Equal(want) {
			return fmt.Errorf("%w: profile %s has layout %s, extractor produces %s",
				ErrConfigurationMismatch, p.Identity, got, want)
		}
	}
	return nil
}

// shortlist narrows profiles to the configured number of nearest identities.
// Any failure falls back to scoring every profile.
func (e *Engine) shortlist(ctx context.Context, probe features.Bundle, profiles []database.FaceProfile) []database.FaceProfile {
	k := e.profile.ShortlistSize
	if k <= 0 || len(profiles) <= k {
		return profiles
	}

	ids, err := e.nearest(ctx, probe, profiles, k)
	if err != nil || len(ids) == 0 {
		e.log.Warn("shortlist unavailable, scoring every profile",
			zap.Int("profiles", len(profiles)), zap.Error(err))
		return profiles
	}

	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	out := make([]database.FaceProfile, 0, len(ids))
	for _, p := range profiles {
		if _, ok := keep[p.Identity]; ok {
			out = append(out, p)
		}
	}
	e.log.Debug("shortlisted profiles", zap.Int("profiles", len(profiles)), zap.Int("shortlist", len(out)))
	return out
}

func (e *Engine) nearest(ctx context.Context, probe features.Bundle, profiles []database.FaceProfile, k int) ([]string, error) {
	if s, ok := e.store.(database.Shortlister); ok {
		return s.Nearest(ctx, probe, k)
	}

	idx, err := e.shortlistIndex(profiles)
	if err != nil {
		return nil, err
	}
	ids, distances, err := idx.Search(probe, k*database.HNSWSearchMultiplier)
	if err != nil {
		return nil, err
	}

	type hit struct {
		id   string
		dist float64
	}
	hits := make([]hit, len(ids))
	for i := range ids {
		hits[i] = hit{ids[i], distances[i]}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		if a.dist != b.dist {
			if a.dist < b.dist {
				return -1
			}
			return 1
		}
		if a.id < b.id {
			return -1
		}
		if a.id > b.id {
			return 1
		}
		return 0
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out, nil
}

// shortlistIndex returns an index built from profiles, loading or rebuilding
// it when the gallery changed.
func (e *Engine) shortlistIndex(profiles []database.FaceProfile) (*database.ShortlistIndex, error) {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	if e.index != nil && e.index.Fresh(profiles) {
		return e.index, nil
	}

	idx := database.NewShortlistIndex()
	if e.indexPath != "" {
		loaded, err := idx.Load(e.indexPath, profiles)
		if err != nil {
			e.log.Warn("failed to load shortlist index, rebuilding", zap.String("path", e.indexPath), zap.Error(err))
		}
		if loaded {
			e.log.Info("loaded shortlist index", zap.String("path", e.indexPath), zap.Int("profiles", idx.Count()))
			e.index = idx
			return idx, nil
		}
	}

	start := time.Now()
	if err := idx.Build(profiles); err != nil {
		return nil, fmt.Errorf("build shortlist index: %w", err)
	}
	e.log.Info("built shortlist index", zap.Int("profiles", idx.Count()), zap.Duration("took", time.Since(start)))
	e.index = idx

	if e.indexPath != "" {
		if err := idx.Save(e.indexPath); err != nil {
			e.log.Warn("failed to save shortlist index", zap.String("path", e.indexPath), zap.Error(err))
		}
	}
	return idx, nil
}

// invalidateShortlist drops the in-memory index after a gallery change.
func (e *Engine) invalidateShortlist() {
	e.indexMu.Lock()
	e.index = nil
	e.indexMu.Unlock()
}

// Stats reports the engine configuration and the enrolled gallery.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	profiles, err := e.store.List(ctx)
	if err != nil {
		return nil, storeError(ctx, "list profiles", err)
	}

	st := &Stats{
		Profile:     e.profile.Name,
		Description: e.profile.Description,
		Enrolled:    len(profiles),
		Identities:  make([]string, 0, len(profiles)),
		Layout:      e.extractor.Layout(),
		Policy:      e.validator.Policy(),
		Quality:     e.gate.Thresholds(),
		Aggregation: string(e.comparer.Aggregation()),
	}
	want := e.extractor.Layout()
	for _, p := range profiles {
		st.Identities = append(st.Identities, p.Identity)
		if !p.Bundle.Layout().Equal(want) {
			st.Mismatched = append(st.Mismatched, p.Identity)
		}
	}
	return st, nil
}
