package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/narrateapp/narrate-server/internal/domain"
)

func (s *Server) registerCatalogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getCatalog",
		Method:      http.MethodGet,
		Path:        "/api/v1/catalog",
		Summary:     "Get catalog",
		Description: "Returns the entire shared library",
		Tags:        []string{"Catalog"},
	}, s.handleGetCatalog)

	huma.Register(s.api, huma.Operation{
		OperationID: "putCatalog",
		Method:      http.MethodPut,
		Path:        "/api/v1/catalog",
		Summary:     "Replace catalog",
		Description: "Replaces the entire shared library and persists it",
		Tags:        []string{"Catalog"},
	}, s.handlePutCatalog)
}

// CatalogOutput wraps the catalog for huma.
type CatalogOutput struct {
	Body *domain.Catalog
}

// PutCatalogInput carries a full replacement catalog.
type PutCatalogInput struct {
	Body *domain.Catalog
}

func (s *Server) handleGetCatalog(_ context.Context, _ *struct{}) (*CatalogOutput, error) {
	return &CatalogOutput{Body: s.services.Library.Catalog()}, nil
}

func (s *Server) handlePutCatalog(ctx context.Context, input *PutCatalogInput) (*CatalogOutput, error) {
	if err := s.services.Library.ReplaceCatalog(ctx, input.Body); err != nil {
		return nil, err
	}
	return &CatalogOutput{Body: s.services.Library.Catalog()}, nil
}
