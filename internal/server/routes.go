package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cleanops/internal/domain"
	"cleanops/internal/engine"
	"cleanops/internal/engine/auth"
)

func registerRoutes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-route",
		Method:        http.MethodPost,
		Path:          "/routes",
		Summary:       "Create route",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateRouteRequest `json:"body"`
	}) (*bodyOut[domain.Route], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rt, err := e.CreateRoute(ctx, caller, engine.RouteCreateOptions{
			Name:      input.Body.Name,
			Zone:      input.Body.Zone,
			ReportIDs: input.Body.ReportIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rt), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-routes",
		Method:      http.MethodGet,
		Path:        "/routes",
		Summary:     "List routes",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		WorkerID string `query:"worker_id"`
		Limit    int    `query:"limit"`
		Offset   int    `query:"offset"`
	}) (*bodyOut[RouteList], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListRoutes(ctx, caller, engine.RouteListOptions{
			Status:   input.Status,
			WorkerID: input.WorkerID,
			Limit:    input.Limit,
			Offset:   input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(RouteList{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-route",
		Method:      http.MethodGet,
		Path:        "/routes/{id}",
		Summary:     "Get route",
		Errors:      readErrors,
	}, func(ctx context.Context, input *idPath) (*bodyOut[domain.Route], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rt, err := e.GetRoute(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rt), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-route",
		Method:      http.MethodPatch,
		Path:        "/routes/{id}",
		Summary:     "Replace route members or override its status",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateRouteRequest `json:"body"`
	}) (*bodyOut[domain.Route], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rt, err := e.UpdateRoute(ctx, caller, input.ID, engine.RoutePatch{
			Members: input.Body.MemberReportIDs,
			Status:  input.Body.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rt), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-route",
		Method:      http.MethodPost,
		Path:        "/routes/{id}/assign",
		Summary:     "Assign a worker to a route",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body AssignRouteRequest `json:"body"`
	}) (*bodyOut[domain.Route], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rt, err := e.Assign(ctx, caller, input.Body.WorkerID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rt), nil
	})

	registerRouteAction(api, e, "unassign-route", "/routes/{id}/unassign", "Release the route's worker", engine.Engine.Unassign)
	registerRouteAction(api, e, "recompute-route", "/routes/{id}/recompute", "Re-derive route status from its members", engine.Engine.RecomputeRoute)
	registerRouteAction(api, e, "complete-route", "/routes/{id}/complete", "Resolve every member report", engine.Engine.CompleteRoute)
}

type routeAction func(engine.Engine, context.Context, auth.Caller, string) (domain.Route, error)

func registerRouteAction(api huma.API, e engine.Engine, opID, p, summary string, action routeAction) {
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        p,
		Summary:     summary,
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *idPath) (*bodyOut[domain.Route], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rt, err := action(e, ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rt), nil
	})
}
