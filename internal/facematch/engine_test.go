package facematch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/consensus"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/database/mock"
	"github.com/kozaktomas/facegate/internal/features"
	"github.com/kozaktomas/facegate/internal/locator"
)

const faceSize = 128

func clampGray(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

// faceA is a well-lit crop with horizontal and vertical structure. noise > 0
// adds uniform noise in [-noise, noise] from a fixed seed.
func faceA(noise int) *image.Gray {
	rng := rand.New(rand.NewSource(7))
	g := image.NewGray(image.Rect(0, 0, faceSize, faceSize))
	for y := range faceSize {
		for x := range faceSize {
			v := 128 + 60*math.Sin(2*math.Pi*float64(x)/10) + 60*math.Sin(2*math.Pi*float64(y)/14)
			if noise > 0 {
				v += float64(rng.Intn(2*noise+1) - noise)
			}
			g.SetGray(x, y, color.Gray{Y: clampGray(v)})
		}
	}
	return g
}

// faceB is a crop with diagonal structure only.
func faceB() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, faceSize, faceSize))
	for y := range faceSize {
		for x := range faceSize {
			v := 128 + 60*math.Sin(2*math.Pi*float64(x+y)/12) + 40*math.Sin(2*math.Pi*float64(x-y)/9)
			g.SetGray(x, y, color.Gray{Y: clampGray(v)})
		}
	}
	return g
}

// blocks is a crop of random flat 8 px blocks, unrelated to A and B.
func blocks(seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	g := image.NewGray(image.Rect(0, 0, faceSize, faceSize))
	for by := 0; by < faceSize; by += 8 {
		for bx := 0; bx < faceSize; bx += 8 {
			v := uint8(rng.Intn(256))
			for y := by; y < by+8; y++ {
				for x := bx; x < bx+8; x++ {
					g.SetGray(x, y, color.Gray{Y: v})
				}
			}
		}
	}
	return g
}

func uniform(size int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, size, size))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// fastProfile is the standard profile at a lower working resolution.
func fastProfile() config.SecurityProfile {
	p := config.DefaultSecurityProfile()
	p.Features.Resolution = 64
	p.Features.GridSize = 8
	p.Features.GaborKernelSize = 11
	return p
}

var testClock = func() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T, profile config.SecurityProfile, store database.ProfileStore, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(testClock), WithLocator(locator.FullFrame{})}, opts...)
	e, err := New(profile, store, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func mustEnroll(t *testing.T, e *Engine, identity string, img *image.Gray) *database.FaceProfile {
	t.Helper()
	p, err := e.Enroll(context.Background(), identity, img, identity+".png")
	if err != nil {
		t.Fatalf("Enroll(%s): %v", identity, err)
	}
	return p
}

type noFaceLocator struct{}

func (noFaceLocator) Locate(*image.Gray) ([]image.Rectangle, error) { return nil, nil }

func TestNew_InvalidProfile(t *testing.T) {
	p := fastProfile()
	p.Consensus.High = 0.99 // above ultra
	if _, err := New(p, database.NewMemoryStore()); err == nil {
		t.Error("expected error for inverted thresholds")
	}
	if _, err := New(fastProfile(), nil); err == nil {
		t.Error("expected error for missing store")
	}
}

func TestNew_RequiresLocator(t *testing.T) {
	if _, err := New(fastProfile(), database.NewMemoryStore()); err == nil {
		t.Error("expected error without a face locator")
	}
	if _, err := New(fastProfile(), database.NewMemoryStore(), WithLocator(nil)); err == nil {
		t.Error("expected error for a nil face locator")
	}
}

func TestRecognize_EmptyStore(t *testing.T) {
	e := newTestEngine(t, fastProfile(), database.NewMemoryStore())

	for name, img := range map[string]*image.Gray{"face": faceA(0), "flat": uniform(faceSize, 128), "nil": nil} {
		t.Run(name, func(t *testing.T) {
			res, err := e.Recognize(context.Background(), img)
			if !errors.Is(err, ErrNoEnrolledProfiles) {
				t.Fatalf("error = %v, want ErrNoEnrolledProfiles", err)
			}
			if res == nil || res.Accepted || res.Identity != "" {
				t.Errorf("unexpected result %+v", res)
			}
			if res.Tier != consensus.TierRejected || res.Stage != StageReceived {
				t.Errorf("tier %s stage %s", res.Tier, res.Stage)
			}
		})
	}
}

func TestEnrollRecognize_RoundTrip(t *testing.T) {
	store := database.NewMemoryStore()
	e := newTestEngine(t, fastProfile(), store)

	p := mustEnroll(t, e, "student-042", faceA(0))
	if !p.EnrolledAt.Equal(testClock()) || p.SourceReference != "student-042.png" {
		t.Errorf("unexpected profile metadata %+v", p)
	}
	if !p.Bundle.Layout().Equal(e.Layout()) {
		t.Errorf("profile layout %s, engine %s", p.Bundle.Layout(), e.Layout())
	}

	res, err := e.Recognize(context.Background(), faceA(0))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !res.Accepted || res.Identity != "student-042" {
		t.Fatalf("expected acceptance of student-042, got %+v", res)
	}
	if res.Tier != consensus.TierUltraHigh && res.Tier != consensus.TierHigh {
		t.Errorf("tier = %s, want ULTRA_HIGH or HIGH", res.Tier)
	}
	if res.Stage != StageDecided {
		t.Errorf("stage = %s", res.Stage)
	}
	if res.Quality == nil || res.Quality.Score <= 0 {
		t.Errorf("missing quality report: %+v", res.Quality)
	}
	if res.Face != faceA(0).Bounds() {
		t.Errorf("face box = %v", res.Face)
	}
}

func TestRecognize_Deterministic(t *testing.T) {
	e := newTestEngine(t, fastProfile(), database.NewMemoryStore())
	mustEnroll(t, e, "A", faceA(0))
	mustEnroll(t, e, "B", faceB())

	probe := faceA(6)
	first, err1 := e.Recognize(context.Background(), probe)
	second, err2 := e.Recognize(context.Background(), probe)
	if fmt.Sprint(err1) != fmt.Sprint(err2) {
		t.Fatalf("errors differ: %v vs %v", err1, err2)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestRecognize_QualityRejection(t *testing.T) {
	e := newTestEngine(t, fastProfile(), database.NewMemoryStore())
	mustEnroll(t, e, "A", faceA(0))

	tests := []struct {
		name string
		img  *image.Gray
		want error
		code string
	}{
		{"black", uniform(faceSize, 0), ErrPoorLighting, "poor_lighting"},
		{"gray", uniform(faceSize, 128), ErrLowContrast, "low_contrast"},
		{"tiny", uniform(20, 128), ErrFaceTooSmall, "face_too_small"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Recognize(context.Background(), tt.img)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if !IsQualityRejection(err) || Code(err) != tt.code {
				t.Errorf("code = %q", Code(err))
			}
			if res.Stage != StageLocated {
				t.Errorf("stage = %s, want %s", res.Stage, StageLocated)
			}
			if res.Quality == nil || res.Candidates != nil {
				t.Errorf("expected quality report and no candidates: %+v", res)
			}
		})
	}

	if _, err := e.Enroll(context.Background(), "dark", uniform(faceSize, 0), ""); !errors.Is(err, ErrPoorLighting) {
		t.Errorf("Enroll error = %v, want ErrPoorLighting", err)
	}
	if n, _ := e.Store().Count(context.Background()); n != 1 {
		t.Errorf("rejected enrolment changed the store: %d profiles", n)
	}
}

func TestRecognize_NoFaceDetected(t *testing.T) {
	e := newTestEngine(t, fastProfile(), database.NewMemoryStore())
	mustEnroll(t, e, "A", faceA(0))

	blind := newTestEngine(t, fastProfile(), e.Store(), WithLocator(noFaceLocator{}))
	res, err := blind.Recognize(context.Background(), faceA(0))
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Fatalf("error = %v, want ErrNoFaceDetected", err)
	}
	if res.Stage != StageReceived || res.Accepted {
		t.Errorf("unexpected result %+v", res)
	}
}

// With a single enrolled identity every unrelated crop is still the best
// candidate, so only the scores keep it from being accepted.
func TestRecognize_SingleIdentityRejectsUnrelated(t *testing.T) {
	if testing.Short() {
		t.Skip("full-resolution extraction")
	}
	e := newTestEngine(t, config.DefaultSecurityProfile(), database.NewMemoryStore())
	mustEnroll(t, e, "A", faceA(0))

	inputs := map[string]*image.Gray{"faceB": faceB()}
	for seed := int64(1); seed <= 6; seed++ {
		inputs[fmt.Sprintf("blocks-%d", seed)] = blocks(seed)
	}
	for name, img := range inputs {
		t.Run(name, func(t *testing.T) {
			res, err := e.Recognize(context.Background(), img)
			if !errors.Is(err, ErrInsufficientConsensus) {
				t.Fatalf("error = %v, want ErrInsufficientConsensus (aggregated %.3f)", err, res.AggregatedScore)
			}
			if res.Accepted || res.Identity != "" || res.Stage != StageDecided {
				t.Errorf("unexpected result %+v", res)
			}
			if res.Best == nil || res.Best.Identity() != "A" || res.Best.Accepted {
				t.Errorf("expected A as the rejected best candidate, got %+v", res.Best)
			}
		})
	}
}

// Two distinct identities; a noisy copy of A must match A and an unrelated
// crop must match nobody.
func TestRecognize_Scenario(t *testing.T) {
	if testing.Short() {
		t.Skip("full-resolution extraction")
	}
	e := newTestEngine(t, config.DefaultSecurityProfile(), database.NewMemoryStore())
	mustEnroll(t, e, "A", faceA(0))
	mustEnroll(t, e, "B", faceB())

	res, err := e.Recognize(context.Background(), faceA(6))
	if err != nil {
		t.Fatalf("noisy A: %v", err)
	}
	if !res.Accepted || res.Identity != "A" {
		t.Fatalf("noisy A: expected A, got %+v", res)
	}
	if res.Tier < consensus.TierMedium {
		t.Errorf("noisy A: tier %s below MEDIUM", res.Tier)
	}
	if len(res.Candidates) != 2 || res.Candidates[0].Identity() != "A" {
		t.Errorf("noisy A: candidates not ranked with A first: %+v", res.Candidates)
	}

	res, err = e.Recognize(context.Background(), blocks(3))
	if !errors.Is(err, ErrInsufficientConsensus) {
		t.Fatalf("unrelated: error = %v, want ErrInsufficientConsensus", err)
	}
	if res.Accepted || res.Identity != "" || res.Tier != consensus.TierRejected {
		t.Errorf("unrelated: unexpected acceptance %+v", res)
	}
	if res.Stage != StageDecided || res.Best == nil || res.Best.Accepted {
		t.Errorf("unrelated: expected best rejected candidate for audit, got %+v", res.Best)
	}
	if res.AggregatedScore != res.Best.Score.Aggregated {
		t.Errorf("aggregated %v, best %v", res.AggregatedScore, res.Best.Score.Aggregated)
	}
}

func TestRecognize_ConfigurationMismatch(t *testing.T) {
	store := database.NewMemoryStore()

	reduced := fastProfile()
	reduced.Features.Families = []features.Family{features.LBP, features.Regional, features.Edge}
	reduced.Consensus.MediumCount = 3
	old := newTestEngine(t, reduced, store)
	mustEnroll(t, old, "legacy", faceA(0))

	e := newTestEngine(t, fastProfile(), store)
	res, err := e.Recognize(context.Background(), faceA(0))
	if !errors.Is(err, ErrConfigurationMismatch) {
		t.Fatalf("error = %v, want ErrConfigurationMismatch", err)
	}
	if res.Accepted || res.Candidates != nil {
		t.Errorf("mismatched profile must not be scored: %+v", res)
	}

	st, err := e.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Mismatched) != 1 || st.Mismatched[0] != "legacy" {
		t.Errorf("mismatched = %v", st.Mismatched)
	}
}

func TestEngine_StoreFailures(t *testing.T) {
	boom := errors.New("connection reset")

	store := mock.NewMockProfileStore()
	e := newTestEngine(t, fastProfile(), store)
	mustEnroll(t, e, "A", faceA(0))

	store.ListError = boom
	res, err := e.Recognize(context.Background(), faceA(0))
	if !errors.Is(err, ErrProfileStore) || !errors.Is(err, boom) {
		t.Errorf("list failure: error = %v", err)
	}
	if res == nil || res.Accepted {
		t.Errorf("list failure: unexpected result %+v", res)
	}
	store.ListError = nil

	store.CountError = boom
	if _, err := e.Recognize(context.Background(), faceA(0)); !errors.Is(err, ErrProfileStore) {
		t.Errorf("count failure: error = %v", err)
	}
	store.CountError = nil

	store.PutError = boom
	if _, err := e.Enroll(context.Background(), "B", faceB(), ""); !errors.Is(err, ErrProfileStore) {
		t.Errorf("put failure: error = %v", err)
	}
	store.PutError = nil

	store.DeleteError = boom
	if _, err := e.Revoke(context.Background(), "A"); !errors.Is(err, ErrProfileStore) {
		t.Errorf("delete failure: error = %v", err)
	}
}

func TestRecognize_Cancelled(t *testing.T) {
	e := newTestEngine(t, fastProfile(), database.NewMemoryStore())
	mustEnroll(t, e, "A", faceA(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Recognize(ctx, faceA(0))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrProfileStore) {
		t.Error("cancellation must not be reported as a store failure")
	}
	if res.Accepted || Code(err) != "canceled" {
		t.Errorf("unexpected result %+v code %q", res, Code(err))
	}
}

func TestEnroll_InvalidIdentity(t *testing.T) {
	store := mock.NewMockProfileStore()
	e := newTestEngine(t, fastProfile(), store)

	for _, id := range []string{"", "   ", "a\tb\x00"} {
		if _, err := e.Enroll(context.Background(), id, faceA(0), ""); !errors.Is(err, ErrInvalidIdentity) {
			t.Errorf("Enroll(%q) error = %v, want ErrInvalidIdentity", id, err)
		}
	}
	if len(store.PutCalls) != 0 {
		t.Errorf("invalid identities reached the store: %d puts", len(store.PutCalls))
	}

	p := mustEnroll(t, e, "  Jan   Novák ", faceA(0))
	if p.Identity != "Jan Novák" {
		t.Errorf("identity = %q, want normalised", p.Identity)
	}
}

func TestEnroll_ReplaceAndRevoke(t *testing.T) {
	e := newTestEngine(t, fastProfile(), database.NewMemoryStore())
	ctx := context.Background()

	mustEnroll(t, e, "A", faceB())
	mustEnroll(t, e, "A", faceA(0))
	if n, _ := e.Store().Count(ctx); n != 1 {
		t.Fatalf("re-enrolment should replace, have %d profiles", n)
	}
	res, err := e.Recognize(ctx, faceA(0))
	if err != nil || res.Identity != "A" {
		t.Fatalf("replaced profile not used: %+v, %v", res, err)
	}

	removed, err := e.Revoke(ctx, "A")
	if err != nil || !removed {
		t.Fatalf("Revoke = %v, %v", removed, err)
	}
	removed, err = e.Revoke(ctx, "A")
	if err != nil || removed {
		t.Errorf("second Revoke = %v, %v, want false, nil", removed, err)
	}
	if _, err := e.Recognize(ctx, faceA(0)); !errors.Is(err, ErrNoEnrolledProfiles) {
		t.Errorf("error after revoke = %v, want ErrNoEnrolledProfiles", err)
	}
}

func TestEnroll_RejectDuplicates(t *testing.T) {
	p := fastProfile()
	p.RejectDuplicates = true
	e := newTestEngine(t, p, database.NewMemoryStore())
	ctx := context.Background()

	mustEnroll(t, e, "alice", faceA(0))
	if _, err := e.Enroll(ctx, "bob", faceA(0), ""); !errors.Is(err, ErrDuplicateFace) {
		t.Fatalf("error = %v, want ErrDuplicateFace", err)
	}
	// Re-enrolling the same identity is not a duplicate.
	mustEnroll(t, e, "alice", faceA(0))

	if n, _ := e.Store().Count(ctx); n != 1 {
		t.Errorf("have %d profiles, want 1", n)
	}
}

func TestVerify(t *testing.T) {
	e := newTestEngine(t, fastProfile(), database.NewMemoryStore())
	mustEnroll(t, e, "A", faceA(0))
	mustEnroll(t, e, "B", faceB())
	ctx := context.Background()

	vr, err := e.Verify(ctx, "A", faceA(0))
	if err != nil || !vr.Verified {
		t.Fatalf("Verify(A) = %+v, %v", vr, err)
	}
	if vr.Claim == nil || vr.Claim.Identity() != "A" {
		t.Errorf("claim verdict = %+v", vr.Claim)
	}

	vr, err = e.Verify(ctx, "B", faceA(0))
	if err != nil {
		t.Fatalf("Verify(B): %v", err)
	}
	if vr.Verified || vr.Result.Identity != "A" {
		t.Errorf("claim B with A's face must fail: %+v", vr)
	}
	if vr.Claim == nil || vr.Claim.Identity() != "B" {
		t.Errorf("claimed identity should still be scored: %+v", vr.Claim)
	}

	if _, err := e.Verify(ctx, "nobody", faceA(0)); !errors.Is(err, ErrUnknownIdentity) {
		t.Errorf("error = %v, want ErrUnknownIdentity", err)
	}
	if _, err := e.Verify(ctx, "", faceA(0)); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("error = %v, want ErrInvalidIdentity", err)
	}
}

func TestEnrollBatch(t *testing.T) {
	e := newTestEngine(t, fastProfile(), database.NewMemoryStore())
	decodeErr := errors.New("truncated file")

	open := func(img *image.Gray) func() (*image.Gray, error) {
		return func() (*image.Gray, error) { return img, nil }
	}
	reqs := []EnrollRequest{
		{Identity: "A", SourceReference: "a.png", Open: open(faceA(0))},
		{Identity: "B", SourceReference: "b.png", Open: open(faceB())},
		{Identity: "broken", SourceReference: "broken.png", Open: func() (*image.Gray, error) { return nil, decodeErr }},
		{Identity: "C", SourceReference: "c.png", Open: open(blocks(5))},
		{Identity: "flat", SourceReference: "flat.png", Open: open(uniform(faceSize, 128))},
	}

	var mu sync.Mutex
	var progress []int
	report := e.EnrollBatch(context.Background(), reqs, BatchOptions{
		Concurrency: 2,
		OnProgress: func(p ProgressInfo) {
			mu.Lock()
			defer mu.Unlock()
			if p.Total != len(reqs) {
				t.Errorf("progress total = %d", p.Total)
			}
			progress = append(progress, p.Current)
		},
	})

	if _, err := uuid.Parse(report.BatchID); err != nil {
		t.Errorf("batch id %q is not a uuid: %v", report.BatchID, err)
	}
	if report.Processed != 5 || report.Succeeded != 3 || report.Failed != 2 {
		t.Errorf("report = %+v", report)
	}
	if len(progress) != 5 || progress[4] != 5 {
		t.Errorf("progress = %v", progress)
	}

	want := []struct {
		index int
		code  string
	}{{2, "invalid_image"}, {4, "low_contrast"}}
	if len(report.Errors) != len(want) {
		t.Fatalf("errors = %+v", report.Errors)
	}
	for i, w := range want {
		got := report.Errors[i]
		if got.Index != w.index || got.Code != w.code {
			t.Errorf("error %d = %+v, want index %d code %s", i, got, w.index, w.code)
		}
	}
	if !errors.Is(report.Errors[0].Err, decodeErr) {
		t.Errorf("decode error not wrapped: %v", report.Errors[0].Err)
	}

	ids := make([]string, len(report.Profiles))
	for i, p := range report.Profiles {
		ids[i] = p.Identity
	}
	if !reflect.DeepEqual(ids, []string{"A", "B", "C"}) {
		t.Errorf("profiles = %v, want input order", ids)
	}
}

func TestEnrollBatch_Cancelled(t *testing.T) {
	e := newTestEngine(t, fastProfile(), database.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := e.EnrollBatch(ctx, []EnrollRequest{
		{Identity: "A", Open: func() (*image.Gray, error) { return faceA(0), nil }},
	}, BatchOptions{})
	if report.Failed != 1 || report.Errors[0].Code != "canceled" {
		t.Errorf("report = %+v", report)
	}
}

func TestEngine_ConcurrentRecognizeAndEnroll(t *testing.T) {
	e := newTestEngine(t, fastProfile(), database.NewMemoryStore())
	mustEnroll(t, e, "A", faceA(0))
	probe := faceA(0)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := e.Recognize(context.Background(), probe)
			if err != nil {
				errs <- err
				return
			}
			if res.Identity != "A" {
				errs <- fmt.Errorf("recognised %q", res.Identity)
			}
		}()
		go func(i int) {
			defer wg.Done()
			if _, err := e.Enroll(context.Background(), fmt.Sprintf("other-%d", i), blocks(int64(i+10)), ""); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if n, _ := e.Store().Count(context.Background()); n != 9 {
		t.Errorf("have %d profiles, want 9", n)
	}
}

func TestRecognize_ShortlistIndex(t *testing.T) {
	p := fastProfile()
	p.ShortlistSize = 1
	path := t.TempDir() + "/shortlist.hnsw"

	e := newTestEngine(t, p, database.NewMemoryStore(), WithShortlistIndexPath(path))
	mustEnroll(t, e, "A", faceA(0))
	mustEnroll(t, e, "B", faceB())
	mustEnroll(t, e, "C", blocks(3))

	res, err := e.Recognize(context.Background(), faceA(0))
	if err != nil || res.Identity != "A" {
		t.Fatalf("Recognize = %+v, %v", res, err)
	}
	if len(res.Candidates) != 1 {
		t.Errorf("shortlist should score 1 candidate, scored %d", len(res.Candidates))
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("index not saved: %v", err)
	}

	// A second engine reuses the saved index.
	other := newTestEngine(t, p, e.Store(), WithShortlistIndexPath(path))
	res, err = other.Recognize(context.Background(), faceA(0))
	if err != nil || res.Identity != "A" {
		t.Errorf("Recognize with loaded index = %+v, %v", res, err)
	}
}

func TestRecognize_StoreShortlister(t *testing.T) {
	p := fastProfile()
	p.ShortlistSize = 1

	store := mock.NewMockShortlister("B")
	e := newTestEngine(t, p, store)
	mustEnroll(t, e, "A", faceA(0))
	mustEnroll(t, e, "B", faceB())

	res, err := e.Recognize(context.Background(), faceA(0))
	if err != nil && !errors.Is(err, ErrInsufficientConsensus) {
		t.Fatalf("Recognize: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].Identity() != "B" {
		t.Errorf("candidates = %+v", res.Candidates)
	}
	if !reflect.DeepEqual(store.NearestCalls, []int{1}) {
		t.Errorf("nearest calls = %v", store.NearestCalls)
	}

	// A failing shortlist falls back to every profile.
	store.NearestError = errors.New("index offline")
	res, err = e.Recognize(context.Background(), faceA(0))
	if err != nil || res.Identity != "A" || len(res.Candidates) != 2 {
		t.Errorf("fallback = %+v, %v", res, err)
	}
}

func TestStats(t *testing.T) {
	e := newTestEngine(t, fastProfile(), database.NewMemoryStore())
	mustEnroll(t, e, "B", faceB())
	mustEnroll(t, e, "A", faceA(0))

	st, err := e.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Profile != "standard" || st.Enrolled != 2 || st.Aggregation != "max" {
		t.Errorf("stats = %+v", st)
	}
	if !reflect.DeepEqual(st.Identities, []string{"A", "B"}) {
		t.Errorf("identities = %v", st.Identities)
	}
	if !st.Layout.Equal(e.Layout()) || len(st.Mismatched) != 0 {
		t.Errorf("layout %s mismatched %v", st.Layout, st.Mismatched)
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{nil, ""},
		{ErrNoFaceDetected, "no_face_detected"},
		{fmt.Errorf("wrapped: %w", ErrTooBlurry), "too_blurry"},
		{fmt.Errorf("%w: x", ErrFeatureExtraction), "feature_extraction"},
		{ErrConfigurationMismatch, "configuration_mismatch"},
		{ErrDuplicateFace, "duplicate_face"},
		{context.DeadlineExceeded, "deadline_exceeded"},
		{errors.New("other"), "internal"},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.code {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.code)
		}
	}
}
