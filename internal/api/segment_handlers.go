package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/narrateapp/narrate-server/internal/domain"
	"github.com/narrateapp/narrate-server/internal/errors"
	"github.com/narrateapp/narrate-server/internal/service"
)

func (s *Server) registerSegmentRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSegment",
		Method:      http.MethodGet,
		Path:        "/api/v1/segments/{id}",
		Summary:     "Get segment",
		Description: "Returns one segment by ID",
		Tags:        []string{"Segments"},
	}, s.handleGetSegment)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateSegment",
		Method:      http.MethodPut,
		Path:        "/api/v1/segments/{id}",
		Summary:     "Update segment",
		Description: "Edits segment content. Changing text or voice clears existing audio.",
		Tags:        []string{"Segments"},
	}, s.handleUpdateSegment)

	huma.Register(s.api, huma.Operation{
		OperationID: "generateSegment",
		Method:      http.MethodPost,
		Path:        "/api/v1/segments/{id}/generate",
		Summary:     "Generate narration",
		Description: "Starts narration generation for a segment. Restarting supersedes any run in flight.",
		Tags:        []string{"Segments"},
	}, s.handleGenerateSegment)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelGeneration",
		Method:      http.MethodPost,
		Path:        "/api/v1/segments/{id}/cancel",
		Summary:     "Cancel narration",
		Description: "Cancels the active generation run for a segment",
		Tags:        []string{"Segments"},
	}, s.handleCancelGeneration)
}

// === DTOs ===

// SegmentOutput wraps one segment for huma.
type SegmentOutput struct {
	Body domain.Segment
}

// GetSegmentInput identifies a segment by path parameter.
type GetSegmentInput struct {
	ID string `path:"id" doc:"Segment ID"`
}

// UpdateSegmentRequest carries optional field edits. Omitted fields are left
// unchanged.
type UpdateSegmentRequest struct {
	Title *string `json:"title,omitempty" doc:"New display title"`
	Text  *string `json:"text,omitempty" doc:"New narration text"`
	Voice *string `json:"voice,omitempty" doc:"New narration voice"`
}

// UpdateSegmentInput is the full update request.
type UpdateSegmentInput struct {
	ID   string `path:"id" doc:"Segment ID"`
	Body UpdateSegmentRequest
}

func (s *Server) handleGetSegment(_ context.Context, input *GetSegmentInput) (*SegmentOutput, error) {
	seg, err := s.services.Library.GetSegment(input.ID)
	if err != nil {
		return nil, err
	}
	return &SegmentOutput{Body: seg}, nil
}

func (s *Server) handleUpdateSegment(ctx context.Context, input *UpdateSegmentInput) (*SegmentOutput, error) {
	seg, err := s.services.Library.UpdateSegment(ctx, input.ID, service.SegmentEdit{
		Title: input.Body.Title,
		Text:  input.Body.Text,
		Voice: input.Body.Voice,
	})
	if err != nil {
		return nil, err
	}
	return &SegmentOutput{Body: seg}, nil
}

func (s *Server) handleGenerateSegment(ctx context.Context, input *GetSegmentInput) (*SegmentOutput, error) {
	seg, err := s.services.Generation.Generate(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &SegmentOutput{Body: seg}, nil
}

func (s *Server) handleCancelGeneration(_ context.Context, input *GetSegmentInput) (*MessageOutput, error) {
	if err := s.services.Generation.Cancel(input.ID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Generation canceled"}}, nil
}

// handleSegmentAudio streams a segment's narration. Durable audio is proxied
// from object storage; segments that only carry inline bytes are served
// directly.
func (s *Server) handleSegmentAudio(w http.ResponseWriter, r *http.Request) {
	segmentID := chi.URLParam(r, "id")

	seg, err := s.services.Library.GetSegment(segmentID)
	if err != nil {
		http.Error(w, "segment not found", http.StatusNotFound)
		return
	}

	if fileID := seg.StorageID(); fileID != "" && s.storage != nil {
		rc, err := s.storage.StreamContent(r.Context(), fileID)
		if err != nil {
			s.logger.Error("failed to stream segment audio",
				slog.String("segment_id", segmentID),
				slog.String("file_id", fileID),
				slog.String("error", err.Error()))
			status := http.StatusBadGateway
			if errors.Is(err, errors.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, "audio unavailable", status)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", "audio/ogg")
		if _, err := io.Copy(w, rc); err != nil {
			s.logger.Debug("audio stream interrupted",
				slog.String("segment_id", segmentID),
				slog.String("error", err.Error()))
		}
		return
	}

	if len(seg.AudioData) > 0 {
		w.Header().Set("Content-Type", "audio/ogg")
		_, _ = w.Write(seg.AudioData)
		return
	}

	http.Error(w, "segment has no audio", http.StatusNotFound)
}
