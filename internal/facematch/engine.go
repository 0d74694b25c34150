package facematch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/PradeepMolleti-09/star-shot/internal/models"
	"github.com/PradeepMolleti-09/star-shot/internal/observability"
)

var (
	// ErrSelfieNotFound is returned when the selfie id does not exist.
	ErrSelfieNotFound = errors.New("selfie not found")

	// ErrUnavailable means matching could not be attempted at all
	// (face engine unreachable or timed out). Callers must be able to
	// tell this apart from an empty match list.
	ErrUnavailable = errors.New("matching unavailable")
)

// MatchResult is one photo that cleared the acceptance floors.
type MatchResult struct {
	PhotoURL   string  `json:"image_url"`
	Confidence int     `json:"confidence"`
	Distance   float64 `json:"distance"`
	Tier       string  `json:"tier"`
}

// SelfieStore is the subset of persistence the engine needs for selfies.
type SelfieStore interface {
	GetSelfie(ctx context.Context, id uuid.UUID) (*models.FanSelfie, error)
	UpdateSelfieMatch(ctx context.Context, id uuid.UUID, matched bool, bestConfidence int) error
}

// PhotoSource yields the photos eligible for matching: processed,
// not soft-deleted, face count > 0, descriptors loaded.
type PhotoSource interface {
	ListEligiblePhotos(ctx context.Context, eventID uuid.UUID) ([]models.Photo, error)
}

// Extractor produces face descriptors for an image reference.
type Extractor interface {
	Extract(ctx context.Context, imageURL string) ([][]float32, error)
}

// Engine matches fan selfies against the event's processed photos.
type Engine struct {
	selfies    SelfieStore
	photos     PhotoSource
	extractor  Extractor
	thresholds Thresholds
}

func NewEngine(selfies SelfieStore, photos PhotoSource, extractor Extractor, thresholds Thresholds) *Engine {
	return &Engine{
		selfies:    selfies,
		photos:     photos,
		extractor:  extractor,
		thresholds: thresholds,
	}
}

// MatchSelfie returns the ranked, deduplicated match list for one selfie.
//
// A selfie whose image yields anything other than exactly one face is
// never matched; that is a normal outcome and returns an empty list.
// An unreachable face engine returns ErrUnavailable instead, never an
// empty list.
func (e *Engine) MatchSelfie(ctx context.Context, selfieID uuid.UUID) ([]MatchResult, error) {
	selfie, err := e.selfies.GetSelfie(ctx, selfieID)
	if err != nil {
		observability.MatchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load selfie %s: %w", selfieID, err)
	}
	if selfie == nil {
		return nil, ErrSelfieNotFound
	}

	descriptors, err := e.extractor.Extract(ctx, selfie.ImageURL)
	if err != nil {
		observability.MatchRequests.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(descriptors) != 1 {
		slog.Debug("selfie is ambiguous, skipping match",
			"selfie_id", selfieID, "faces", len(descriptors))
		observability.MatchRequests.WithLabelValues("empty").Inc()
		return []MatchResult{}, nil
	}
	fanDescriptor := descriptors[0]

	photos, err := e.photos.ListEligiblePhotos(ctx, selfie.EventID)
	if err != nil {
		observability.MatchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list eligible photos: %w", err)
	}

	matches := e.rank(fanDescriptor, photos)

	best := 0
	if len(matches) > 0 {
		best = matches[0].Confidence
		observability.MatchRequests.WithLabelValues("matched").Inc()
	} else {
		observability.MatchRequests.WithLabelValues("empty").Inc()
	}
	if err := e.selfies.UpdateSelfieMatch(ctx, selfieID, len(matches) > 0, best); err != nil {
		// Non-fatal: the result is still valid for the caller.
		slog.Warn("persist selfie match summary", "selfie_id", selfieID, "error", err)
	}

	return matches, nil
}

// rank scores every eligible photo against the fan descriptor. A photo
// matches if any contained face is close enough; the best face decides
// the photo's confidence. Eligibility is re-checked per photo, so any
// photo source satisfies the same predicate the store query enforces.
func (e *Engine) rank(fanDescriptor []float32, photos []models.Photo) []MatchResult {
	t := e.thresholds
	results := make([]MatchResult, 0, len(photos))

	for _, photo := range photos {
		if !photo.Eligible() {
			continue
		}
		bestConfidence := 0
		bestDistance := 0.0
		for _, face := range photo.Descriptors {
			dist := Distance(fanDescriptor, face)
			conf := Confidence(dist, t.Scale)
			if conf > bestConfidence {
				bestConfidence = conf
				bestDistance = dist
			}
		}

		if !t.Accept(bestConfidence, bestDistance) {
			continue
		}

		results = append(results, MatchResult{
			PhotoURL:   photo.ImageURL,
			Confidence: bestConfidence,
			Distance:   bestDistance,
			Tier:       t.Tier(bestConfidence),
		})
	}

	results = dedupeByURL(results)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}

// dedupeByURL keeps the single highest-confidence entry per photo URL,
// preserving input order among survivors.
func dedupeByURL(results []MatchResult) []MatchResult {
	best := make(map[string]int, len(results)) // url -> confidence
	for _, r := range results {
		if c, ok := best[r.PhotoURL]; !ok || r.Confidence > c {
			best[r.PhotoURL] = r.Confidence
		}
	}

	out := results[:0]
	seen := make(map[string]bool, len(best))
	for _, r := range results {
		if seen[r.PhotoURL] || r.Confidence != best[r.PhotoURL] {
			continue
		}
		seen[r.PhotoURL] = true
		out = append(out, r)
	}
	return out
}
