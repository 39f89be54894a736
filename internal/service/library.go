package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/narrateapp/narrate-server/internal/domain"
	"github.com/narrateapp/narrate-server/internal/errors"
	"github.com/narrateapp/narrate-server/internal/sse"
)

// LibraryService owns the in-memory catalog. All reads hand out deep clones
// so callers can never mutate shared state; all writes go through this
// service and are persisted via SyncService.
type LibraryService struct {
	sync    *SyncService
	emitter *sse.Manager
	logger  *slog.Logger

	mu      sync.RWMutex
	catalog *domain.Catalog
}

// NewLibraryService creates a new library service with an empty catalog.
// Call Load to populate it.
func NewLibraryService(syncService *SyncService, emitter *sse.Manager, logger *slog.Logger) *LibraryService {
	return &LibraryService{
		sync:    syncService,
		emitter: emitter,
		logger:  logger,
		catalog: domain.EmptyCatalog(),
	}
}

// Load populates the in-memory catalog from the configured stores.
func (s *LibraryService) Load(ctx context.Context) error {
	result, err := s.sync.LoadCatalog(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.catalog = result.Catalog
	s.mu.Unlock()

	s.logger.Info("catalog loaded",
		slog.String("source", string(result.Source)),
		slog.Int("books", len(result.Catalog.Books)))
	if result.Warning != "" {
		s.logger.Warn("catalog loaded in degraded mode", slog.String("warning", result.Warning))
	}
	return nil
}

// Catalog returns a deep clone of the current catalog.
func (s *LibraryService) Catalog() *domain.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Clone()
}

// ReplaceCatalog swaps in a whole new catalog, persists it, and notifies
// connected clients. Used by the catalog PUT endpoint.
func (s *LibraryService) ReplaceCatalog(ctx context.Context, catalog *domain.Catalog) error {
	if catalog == nil {
		return errors.Validation("catalog is required")
	}
	catalog.Normalize()

	s.mu.Lock()
	s.catalog = catalog.Clone()
	s.mu.Unlock()

	if err := s.sync.SaveCatalog(ctx, catalog); err != nil {
		return err
	}
	s.emitter.Emit(sse.NewCatalogUpdatedEvent())
	return nil
}

// GetSegment returns a clone of the segment with the given ID.
func (s *LibraryService) GetSegment(segmentID string) (domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, _, seg, ok := s.catalog.FindSegment(segmentID)
	if !ok {
		return domain.Segment{}, errors.NotFoundf("segment %s not found", segmentID)
	}
	return seg.Clone(), nil
}

// SegmentContext returns clones of the segment and its enclosing book.
func (s *LibraryService) SegmentContext(segmentID string) (domain.Book, domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, _, seg, ok := s.catalog.FindSegment(segmentID)
	if !ok {
		return domain.Book{}, domain.Segment{}, errors.NotFoundf("segment %s not found", segmentID)
	}
	return book.Clone(), seg.Clone(), nil
}

// SegmentEdit carries optional segment field updates. Nil fields are left
// unchanged.
type SegmentEdit struct {
	Title *string
	Text  *string
	Voice *string
}

// UpdateSegment applies an edit to a segment. Changing text or voice clears
// any existing audio so stale narration is never served.
func (s *LibraryService) UpdateSegment(ctx context.Context, segmentID string, edit SegmentEdit) (domain.Segment, error) {
	if edit.Text != nil && strings.TrimSpace(*edit.Text) == "" {
		return domain.Segment{}, errors.Validation("segment text cannot be empty")
	}

	return s.MutateSegment(ctx, segmentID, func(seg *domain.Segment) {
		if edit.Title != nil {
			seg.Title = *edit.Title
		}
		if edit.Text != nil {
			seg.SetText(*edit.Text)
		}
		if edit.Voice != nil {
			seg.SetVoice(*edit.Voice)
		}
	})
}

// MutateSegment applies fn to the live segment under the write lock, persists
// the catalog, and returns a clone of the mutated segment.
func (s *LibraryService) MutateSegment(ctx context.Context, segmentID string, fn func(*domain.Segment)) (domain.Segment, error) {
	s.mu.Lock()
	_, _, seg, ok := s.catalog.FindSegment(segmentID)
	if !ok {
		s.mu.Unlock()
		return domain.Segment{}, errors.NotFoundf("segment %s not found", segmentID)
	}
	fn(seg)
	updated := seg.Clone()
	snapshot := s.catalog.Clone()
	s.mu.Unlock()

	if err := s.sync.SaveCatalog(ctx, snapshot); err != nil {
		return updated, err
	}
	s.emitter.Emit(sse.NewCatalogUpdatedEvent())
	return updated, nil
}

// ApplyRepairs commits a batch of repaired storage references in one
// mutation and one save. Segments deleted since the sweep are skipped.
func (s *LibraryService) ApplyRepairs(ctx context.Context, repairs []SegmentRepair) error {
	if len(repairs) == 0 {
		return nil
	}

	s.mu.Lock()
	for _, r := range repairs {
		_, _, seg, ok := s.catalog.FindSegment(r.SegmentID)
		if !ok {
			continue
		}
		seg.StorageFileID = r.FileID
		seg.AudioURL = r.AudioURL
	}
	snapshot := s.catalog.Clone()
	s.mu.Unlock()

	if err := s.sync.SaveCatalog(ctx, snapshot); err != nil {
		return err
	}
	s.emitter.Emit(sse.NewCatalogUpdatedEvent())
	return nil
}

// SegmentRepair is one repaired durable-audio reference.
type SegmentRepair struct {
	SegmentID string
	FileID    string
	AudioURL  string
}
