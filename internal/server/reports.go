package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cleanops/internal/domain"
	"cleanops/internal/engine"
)

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusServiceUnavailable,
}

var readErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusServiceUnavailable,
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "File a report",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateReportRequest `json:"body"`
	}) (*bodyOut[domain.Report], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.CreateReport(ctx, caller, engine.ReportCreateOptions{
			Location:    domain.Location{Address: input.Body.Address, Lat: input.Body.Lat, Lon: input.Body.Lon},
			Description: input.Body.Description,
			ImageURL:    input.Body.ImageURL,
			Severity:    input.Body.Severity,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		ListQuery
		Status    string `query:"status"`
		Attention string `query:"attention" enum:"true,false"`
		RouteID   string `query:"route_id"`
	}) (*bodyOut[ReportList], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		attention, ok := parseBoolFilter(input.Attention)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "", "attention must be true or false", map[string]any{"field": "attention"})
		}
		items, err := e.ListReports(ctx, caller, engine.ReportListOptions{
			Status:    input.Status,
			Attention: attention,
			RouteID:   input.RouteID,
			Scope:     input.Scope,
			Limit:     input.Limit,
			Offset:    input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ReportList{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}",
		Summary:     "Get report",
		Errors:      readErrors,
	}, func(ctx context.Context, input *idPath) (*bodyOut[domain.Report], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.GetReport(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-report",
		Method:      http.MethodPatch,
		Path:        "/reports/{id}",
		Summary:     "Update report severity, status or attention",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateReportRequest `json:"body"`
	}) (*bodyOut[domain.Report], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.UpdateReport(ctx, caller, input.ID, engine.ReportPatch{
			Severity:  input.Body.Severity,
			Attention: input.Body.Attention,
			Status:    input.Body.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-report",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/resolve",
		Summary:     "Resolve report",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *idPath) (*bodyOut[domain.Report], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.Resolve(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-report",
		Method:      http.MethodDelete,
		Path:        "/reports/{id}",
		Summary:     "Soft delete report",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *idPath) (*bodyOut[domain.Report], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.SoftDelete(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rep), nil
	})
}
