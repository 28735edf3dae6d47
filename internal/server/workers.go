package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cleanops/internal/domain"
	"cleanops/internal/engine"
)

func registerWorkers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-worker",
		Method:        http.MethodPost,
		Path:          "/workers",
		Summary:       "Register worker",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateWorkerRequest `json:"body"`
	}) (*bodyOut[domain.Worker], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.CreateWorker(ctx, caller, engine.WorkerCreateOptions{
			IdentityRef: input.Body.IdentityRef,
			Name:        input.Body.Name,
			Zone:        input.Body.Zone,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workers",
		Method:      http.MethodGet,
		Path:        "/workers",
		Summary:     "List workers",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		Active string `query:"active" enum:"true,false"`
		Limit  int    `query:"limit"`
		Offset int    `query:"offset"`
	}) (*bodyOut[WorkerList], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		active, ok := parseBoolFilter(input.Active)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "", "active must be true or false", map[string]any{"field": "active"})
		}
		items, err := e.ListWorkers(ctx, caller, engine.WorkerListOptions{Active: active, Limit: input.Limit, Offset: input.Offset})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(WorkerList{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-worker",
		Method:      http.MethodGet,
		Path:        "/workers/{id}",
		Summary:     "Get worker",
		Errors:      readErrors,
	}, func(ctx context.Context, input *idPath) (*bodyOut[domain.Worker], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.GetWorker(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-worker",
		Method:      http.MethodPatch,
		Path:        "/workers/{id}",
		Summary:     "Activate or deactivate worker",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateWorkerRequest `json:"body"`
	}) (*bodyOut[domain.Worker], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.SetWorkerActive(ctx, caller, input.ID, input.Body.Active)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(w), nil
	})
}
