package service

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/narrateapp/narrate-server/internal/codec"
	"github.com/narrateapp/narrate-server/internal/config"
	"github.com/narrateapp/narrate-server/internal/domain"
	"github.com/narrateapp/narrate-server/internal/errors"
	"github.com/narrateapp/narrate-server/internal/id"
	"github.com/narrateapp/narrate-server/internal/objstore"
	"github.com/narrateapp/narrate-server/internal/sse"
	"github.com/narrateapp/narrate-server/internal/synthesis"
)

// Cancellation causes, distinguished via context.Cause so a superseded run
// can be told apart from a user cancel.
var (
	errRunSuperseded = errors.New("generation run superseded by a newer run")
	errRunCanceled   = errors.New("generation run canceled by user")
	errShuttingDown  = errors.New("server shutting down")
)

// generationRun tracks one in-flight narration run for a segment.
type generationRun struct {
	token  string
	cancel context.CancelCauseFunc
}

// GenerationService orchestrates the narration pipeline: synthesize text,
// encode the audio, upload it to object storage, and commit the durable
// reference onto the segment. At most one run per segment is live; starting
// a new run atomically cancels and supersedes the previous one.
type GenerationService struct {
	library *LibraryService
	synth   synthesis.Synthesizer
	storage objstore.Client // nil when storage is not configured
	emitter *sse.Manager
	logger  *slog.Logger
	cfg     config.GenerationConfig

	folderName string
	folderMu   sync.Mutex
	folderID   string

	runs *SyncMap[string, *generationRun]
	wg   sync.WaitGroup
}

// NewGenerationService creates a new generation service. storage may be nil,
// in which case Generate refuses to start.
func NewGenerationService(
	library *LibraryService,
	synth synthesis.Synthesizer,
	storage objstore.Client,
	emitter *sse.Manager,
	cfg config.GenerationConfig,
	folderName string,
	logger *slog.Logger,
) *GenerationService {
	return &GenerationService{
		library:    library,
		synth:      synth,
		storage:    storage,
		emitter:    emitter,
		logger:     logger,
		cfg:        cfg,
		folderName: folderName,
		runs:       NewSyncMap[string, *generationRun](),
	}
}

// Generate starts narration for a segment and returns immediately with the
// segment in the generating state. Progress and the terminal outcome are
// delivered via SSE and persisted on the segment.
func (g *GenerationService) Generate(ctx context.Context, segmentID string) (domain.Segment, error) {
	if g.storage == nil {
		return domain.Segment{}, errors.Unsupported("object storage is not configured, cannot generate narration")
	}

	book, seg, err := g.library.SegmentContext(segmentID)
	if err != nil {
		return domain.Segment{}, err
	}
	if seg.Text == "" {
		return domain.Segment{}, errors.Validation("segment has no text to narrate")
	}
	voice := seg.Voice

	// The run outlives the HTTP request, so it hangs off the background
	// context with its own deadline.
	runCtx, cancelCause := context.WithCancelCause(context.Background())
	runCtx, cancelTimeout := context.WithTimeout(runCtx, g.cfg.Timeout)

	run := &generationRun{
		token:  id.MustGenerate("run"),
		cancel: cancelCause,
	}
	if prev, loaded := g.runs.Swap(segmentID, run); loaded {
		prev.cancel(errRunSuperseded)
	}

	updated, err := g.library.MutateSegment(ctx, segmentID, func(s *domain.Segment) {
		s.MarkGenerating(5)
	})
	if err != nil {
		g.logger.Warn("failed to persist generating status",
			slog.String("segment_id", segmentID),
			slog.String("error", err.Error()))
	}
	g.emitter.Emit(sse.NewGenerationProgressEvent(segmentID, updated.Progress))

	g.wg.Add(1)
	go g.run(runCtx, cancelTimeout, run, segmentID, book.Title, seg.Title, seg.Text, voice)

	return updated, nil
}

// Cancel stops the active run for a segment. Returns NotFound when nothing
// is running.
func (g *GenerationService) Cancel(segmentID string) error {
	run, ok := g.runs.Load(segmentID)
	if !ok {
		return errors.NotFoundf("no active generation for segment %s", segmentID)
	}
	run.cancel(errRunCanceled)
	return nil
}

// Running reports whether a segment has an active run.
func (g *GenerationService) Running(segmentID string) bool {
	_, ok := g.runs.Load(segmentID)
	return ok
}

// Shutdown cancels all active runs and waits for their workers to exit.
func (g *GenerationService) Shutdown() {
	g.runs.Range(func(_ string, run *generationRun) bool {
		run.cancel(errShuttingDown)
		return true
	})
	g.wg.Wait()
}

// run executes the pipeline for one segment. Every exit path removes the run
// token and leaves the segment in a terminal state; a segment is never left
// showing generating.
func (g *GenerationService) run(
	ctx context.Context,
	cancelTimeout context.CancelFunc,
	run *generationRun,
	segmentID, bookTitle, segmentTitle, text, voice string,
) {
	defer g.wg.Done()
	defer cancelTimeout()
	defer g.runs.CompareAndDelete(segmentID, run, func(a, b *generationRun) bool {
		return a.token == b.token
	})

	g.wg.Add(1)
	go g.tickProgress(ctx, segmentID)

	result, err := g.synth.Synthesize(ctx, text, voice)
	if err != nil {
		g.finishError(ctx, segmentID, run.token, "synthesize narration", err)
		return
	}

	encoded, err := codec.EncodeBytes(result.PCM, result.SampleRate, result.Channels)
	if err != nil {
		g.finishError(ctx, segmentID, run.token, "encode audio", err)
		return
	}

	folderID, err := g.resolveFolder(ctx)
	if err != nil {
		g.finishError(ctx, segmentID, run.token, "resolve storage folder", err)
		return
	}

	// Upload is the last stage; pin progress to the near-final checkpoint
	// the ticker never reaches. Only the commit itself may report 100.
	if g.isCurrent(segmentID, run.token) && ctx.Err() == nil {
		if _, err := g.library.MutateSegment(ctx, segmentID, func(s *domain.Segment) {
			if s.Status == domain.StatusGenerating {
				s.SetProgress(95)
			}
		}); err != nil {
			g.logger.Warn("failed to persist progress", slog.String("error", err.Error()))
		} else {
			g.emitter.Emit(sse.NewGenerationProgressEvent(segmentID, 95))
		}
	}

	filename := narrationFilename(bookTitle, segmentTitle)
	fileID, err := g.storage.Upload(ctx, folderID, filename, "audio/ogg", encoded)
	if err != nil {
		g.finishError(ctx, segmentID, run.token, "upload audio", err)
		return
	}

	if err := g.storage.GrantPublicRead(ctx, fileID); err != nil {
		g.finishError(ctx, segmentID, run.token, "share audio", err)
		return
	}

	g.finishSuccess(ctx, segmentID, run.token, fileID, g.storage.PublicURL(fileID))
}

// finishSuccess commits the durable reference, unless this run was
// superseded in the meantime, in which case the result is discarded so the
// newer run's state wins.
func (g *GenerationService) finishSuccess(ctx context.Context, segmentID, token, fileID, audioURL string) {
	if !g.isCurrent(segmentID, token) || ctx.Err() != nil {
		g.finishError(ctx, segmentID, token, "commit narration", context.Cause(ctx))
		return
	}

	if _, err := g.library.MutateSegment(context.WithoutCancel(ctx), segmentID, func(s *domain.Segment) {
		s.CommitUpload(fileID, audioURL)
	}); err != nil {
		g.logger.Warn("failed to persist completed narration",
			slog.String("segment_id", segmentID),
			slog.String("error", err.Error()))
	}

	g.logger.Info("narration generated",
		slog.String("segment_id", segmentID),
		slog.String("file_id", fileID))
	g.emitter.Emit(sse.NewGenerationCompleteEvent(segmentID, audioURL))
}

// finishError maps a pipeline failure onto the segment's terminal state.
func (g *GenerationService) finishError(ctx context.Context, segmentID, token, stage string, err error) {
	cause := context.Cause(ctx)

	// A superseded run must not touch the segment; the run that replaced it
	// owns the state now.
	if errors.Is(cause, errRunSuperseded) || !g.isCurrentOrGone(segmentID, token) {
		g.logger.Debug("superseded generation run discarded",
			slog.String("segment_id", segmentID))
		return
	}

	// Status writes below must survive the run context being canceled.
	saveCtx := context.WithoutCancel(ctx)

	switch {
	case errors.Is(cause, errRunCanceled) || errors.Is(cause, errShuttingDown):
		if _, err := g.library.MutateSegment(saveCtx, segmentID, func(s *domain.Segment) {
			s.MarkCanceled()
		}); err != nil {
			g.logger.Warn("failed to persist canceled status", slog.String("error", err.Error()))
		}
		g.logger.Info("narration generation canceled", slog.String("segment_id", segmentID))
		g.emitter.Emit(sse.NewGenerationCanceledEvent(segmentID))

	case errors.Is(cause, context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		updated, mErr := g.library.MutateSegment(saveCtx, segmentID, func(s *domain.Segment) {
			s.MarkTimedOut()
		})
		if mErr != nil {
			g.logger.Warn("failed to persist timeout status", slog.String("error", mErr.Error()))
		}
		g.logger.Warn("narration generation timed out",
			slog.String("segment_id", segmentID),
			slog.Duration("timeout", g.cfg.Timeout))
		g.emitter.Emit(sse.NewGenerationFailedEvent(segmentID, updated.ErrorMessage, true))

	default:
		msg := stage + ": " + err.Error()
		if _, mErr := g.library.MutateSegment(saveCtx, segmentID, func(s *domain.Segment) {
			s.MarkError(msg)
		}); mErr != nil {
			g.logger.Warn("failed to persist error status", slog.String("error", mErr.Error()))
		}
		g.logger.Error("narration generation failed",
			slog.String("segment_id", segmentID),
			slog.String("stage", stage),
			slog.String("error", err.Error()))
		g.emitter.Emit(sse.NewGenerationFailedEvent(segmentID, msg, false))
	}
}

// tickProgress advances simulated progress while the run is in flight. The
// advance caps below 95 so only a real upload commit can reach 100.
func (g *GenerationService) tickProgress(ctx context.Context, segmentID string) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var progress int
			advanced := false
			if _, err := g.library.MutateSegment(context.WithoutCancel(ctx), segmentID, func(s *domain.Segment) {
				if s.Status != domain.StatusGenerating || s.Progress >= 94 {
					return
				}
				s.SetProgress(s.Progress + 6)
				progress = s.Progress
				advanced = true
			}); err != nil {
				g.logger.Warn("failed to persist progress", slog.String("error", err.Error()))
			}
			if advanced {
				g.emitter.Emit(sse.NewGenerationProgressEvent(segmentID, progress))
			}
		}
	}
}

// isCurrent reports whether token still owns the segment's run slot.
func (g *GenerationService) isCurrent(segmentID, token string) bool {
	run, ok := g.runs.Load(segmentID)
	return ok && run.token == token
}

// isCurrentOrGone is like isCurrent but also accepts an empty slot, which
// happens when the deferred cleanup already ran.
func (g *GenerationService) isCurrentOrGone(segmentID, token string) bool {
	run, ok := g.runs.Load(segmentID)
	return !ok || run.token == token
}

// resolveFolder returns the storage folder ID, resolving it once and caching
// it for subsequent runs.
func (g *GenerationService) resolveFolder(ctx context.Context) (string, error) {
	g.folderMu.Lock()
	defer g.folderMu.Unlock()

	if g.folderID != "" {
		return g.folderID, nil
	}
	folderID, err := g.storage.ResolveOrCreateFolder(ctx, g.folderName)
	if err != nil {
		return "", err
	}
	g.folderID = folderID
	return folderID, nil
}

// narrationFilename builds a collision-resistant storage filename from the
// book and segment titles. Re-generating a segment must never overwrite the
// previous file, so every name carries a fresh random suffix.
func narrationFilename(bookTitle, segmentTitle string) string {
	base := objstore.SanitizeFilename(bookTitle + " " + segmentTitle)
	suffix, err := id.Suffix(8)
	if err != nil {
		suffix = strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return base + "_" + suffix + ".ogg"
}
