package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"cleanops/internal/domain"
	"cleanops/internal/engine"
)

func registerBinRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-bin-request",
		Method:        http.MethodPost,
		Path:          "/bin-requests",
		Summary:       "Request a bin",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateBinRequestRequest `json:"body"`
	}) (*bodyOut[domain.BinRequest], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.CreateBinRequest(ctx, caller, domain.Location{
			Address: input.Body.Address,
			Lat:     input.Body.Lat,
			Lon:     input.Body.Lon,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-bin-requests",
		Method:      http.MethodGet,
		Path:        "/bin-requests",
		Summary:     "List bin requests",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		ListQuery
		Status string `query:"status"`
	}) (*bodyOut[BinRequestList], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListBinRequests(ctx, caller, engine.BinRequestListOptions{
			Status: input.Status,
			Scope:  input.Scope,
			Limit:  input.Limit,
			Offset: input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(BinRequestList{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-bin-request",
		Method:      http.MethodGet,
		Path:        "/bin-requests/{id}",
		Summary:     "Get bin request",
		Errors:      readErrors,
	}, func(ctx context.Context, input *idPath) (*bodyOut[domain.BinRequest], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.GetBinRequest(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-bin-request",
		Method:      http.MethodPatch,
		Path:        "/bin-requests/{id}",
		Summary:     "Advance bin request to its next status",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body AdvanceBinRequestRequest `json:"body"`
	}) (*bodyOut[domain.BinRequest], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var (
			b   domain.BinRequest
			err error
		)
		if strings.TrimSpace(input.Body.Status) == domain.BinDenied {
			b, err = e.DenyBinRequest(ctx, caller, input.ID)
		} else {
			b, err = e.AdvanceBinRequest(ctx, caller, input.ID, input.Body.Status)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return respond(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deny-bin-request",
		Method:      http.MethodDelete,
		Path:        "/bin-requests/{id}",
		Summary:     "Deny a pending bin request",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *idPath) (*bodyOut[domain.BinRequest], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.DenyBinRequest(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(b), nil
	})
}
