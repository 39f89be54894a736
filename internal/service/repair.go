package service

import (
	"context"
	"log/slog"

	"github.com/narrateapp/narrate-server/internal/domain"
	"github.com/narrateapp/narrate-server/internal/errors"
	"github.com/narrateapp/narrate-server/internal/objstore"
	"github.com/narrateapp/narrate-server/internal/sse"
)

// RepairReport summarizes a library repair sweep.
type RepairReport struct {
	Repaired   int    `json:"repaired"`
	Failed     int    `json:"failed"`
	FirstError string `json:"first_error,omitempty"`
}

// RepairService re-derives playback links for segments that already have a
// durable audio file. It covers catalogs written by older versions where the
// stored URL format changed or the public-read grant was lost.
type RepairService struct {
	library *LibraryService
	storage objstore.Client // nil when storage is not configured
	emitter *sse.Manager
	logger  *slog.Logger
}

// NewRepairService creates a new repair service.
func NewRepairService(library *LibraryService, storage objstore.Client, emitter *sse.Manager, logger *slog.Logger) *RepairService {
	return &RepairService{
		library: library,
		storage: storage,
		emitter: emitter,
		logger:  logger,
	}
}

// RepairAll sweeps every segment holding a storage reference, re-grants
// public read, and rewrites the playback URL from the file ID. Individual
// failures are counted but do not abort the sweep; all successful fixes are
// applied in one catalog mutation and one save at the end.
func (r *RepairService) RepairAll(ctx context.Context) (*RepairReport, error) {
	if r.storage == nil {
		return nil, errors.Unsupported("object storage is not configured, cannot repair library")
	}

	catalog := r.library.Catalog()

	report := &RepairReport{}
	var repairs []SegmentRepair

	catalog.EachSegment(func(_ *domain.Book, _ *domain.Chapter, seg *domain.Segment) bool {
		fileID := seg.StorageID()
		if fileID == "" {
			return true
		}
		if err := ctx.Err(); err != nil {
			report.Failed++
			if report.FirstError == "" {
				report.FirstError = err.Error()
			}
			return false
		}

		if err := r.storage.GrantPublicRead(ctx, fileID); err != nil {
			report.Failed++
			if report.FirstError == "" {
				report.FirstError = err.Error()
			}
			r.logger.Warn("repair failed for segment",
				slog.String("segment_id", seg.ID),
				slog.String("file_id", fileID),
				slog.String("error", err.Error()))
			return true
		}

		report.Repaired++
		repairs = append(repairs, SegmentRepair{
			SegmentID: seg.ID,
			FileID:    fileID,
			AudioURL:  r.storage.PublicURL(fileID),
		})
		return true
	})

	if err := r.library.ApplyRepairs(ctx, repairs); err != nil {
		return nil, err
	}

	r.logger.Info("library repair complete",
		slog.Int("repaired", report.Repaired),
		slog.Int("failed", report.Failed))
	r.emitter.Emit(sse.NewRepairCompleteEvent(report.Repaired, report.Failed, report.FirstError))
	return report, nil
}
