package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cleanops/internal/domain"
	"cleanops/internal/engine"
)

func registerDashboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Operational overview",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[domain.Overview], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ov, err := e.Overview(ctx, caller)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ov), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Read the event log",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		After      int64  `query:"after"`
		EntityKind string `query:"entity_kind" enum:"report,route,bin_request,worker"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
	}) (*bodyOut[EventList], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListEvents(ctx, caller, engine.EventListOptions{
			AfterID:    input.After,
			Limit:      input.Limit,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(EventList{Items: items, NextCursor: eventCursor(items)}), nil
	})
}
