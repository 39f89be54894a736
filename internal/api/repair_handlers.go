package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/narrateapp/narrate-server/internal/service"
)

func (s *Server) registerRepairRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "repairLibrary",
		Method:      http.MethodPost,
		Path:        "/api/v1/repair",
		Summary:     "Repair library",
		Description: "Re-derives playback links for all segments with durable audio",
		Tags:        []string{"Library"},
	}, s.handleRepairLibrary)
}

// RepairOutput wraps the repair report for huma.
type RepairOutput struct {
	Body service.RepairReport
}

func (s *Server) handleRepairLibrary(ctx context.Context, _ *struct{}) (*RepairOutput, error) {
	report, err := s.services.Repair.RepairAll(ctx)
	if err != nil {
		return nil, err
	}
	return &RepairOutput{Body: *report}, nil
}
