// Package lifecycle defines which status transitions are legal for each entity kind.
// It performs no I/O.
package lifecycle

import (
	"cleanops/internal/apperr"
	"cleanops/internal/domain"
)

var reportEdges = map[string][]string{
	domain.ReportOpen:       {domain.ReportInReview, domain.ReportDispatched, domain.ReportResolved, domain.ReportDeleted},
	domain.ReportInReview:   {domain.ReportDispatched, domain.ReportResolved, domain.ReportDeleted},
	domain.ReportDispatched: {domain.ReportResolved, domain.ReportDeleted},
	domain.ReportResolved:   {domain.ReportDeleted},
	domain.ReportDeleted:    {},
}

var binRequestEdges = map[string][]string{
	domain.BinRequested:  {domain.BinApproved, domain.BinDenied},
	domain.BinApproved:   {domain.BinInProgress},
	domain.BinInProgress: {domain.BinCompleted},
	domain.BinCompleted:  {},
	domain.BinDenied:     {},
}

// Route edges are manual overrides only; completed is never a target.
var routeEdges = map[string][]string{
	domain.RoutePlanned:    {domain.RouteAssigned, domain.RouteInProgress},
	domain.RouteAssigned:   {domain.RoutePlanned, domain.RouteInProgress},
	domain.RouteInProgress: {domain.RoutePlanned, domain.RouteAssigned},
	domain.RouteCompleted:  {},
}

func edges(kind domain.EntityKind) map[string][]string {
	switch kind {
	case domain.KindReport:
		return reportEdges
	case domain.KindBinRequest:
		return binRequestEdges
	case domain.KindRoute:
		return routeEdges
	default:
		return nil
	}
}

// ValidStatus reports whether s is a known status literal for kind.
func ValidStatus(kind domain.EntityKind, s string) bool {
	_, ok := edges(kind)[s]
	return ok
}

// CanTransition reports whether from -> to is a legal edge for kind.
func CanTransition(kind domain.EntityKind, from, to string) bool {
	for _, next := range edges(kind)[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LegalNextStates lists the statuses reachable from from in one step.
func LegalNextStates(kind domain.EntityKind, from string) []string {
	next := edges(kind)[from]
	out := make([]string, len(next))
	copy(out, next)
	return out
}

// Check returns an InvalidTransition error when from -> to is not legal.
func Check(kind domain.EntityKind, from, to string) error {
	if CanTransition(kind, from, to) {
		return nil
	}
	return apperr.InvalidTransition(string(kind), from, to)
}

// NextInPipeline returns the forward successor of a bin request status.
// Denial is a separate exit and never part of the pipeline.
func NextInPipeline(from string) (string, bool) {
	switch from {
	case domain.BinRequested:
		return domain.BinApproved, true
	case domain.BinApproved:
		return domain.BinInProgress, true
	case domain.BinInProgress:
		return domain.BinCompleted, true
	default:
		return "", false
	}
}

func ValidSeverity(s string) bool {
	switch s {
	case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave from.
func Terminal(kind domain.EntityKind, from string) bool {
	next, ok := edges(kind)[from]
	return ok && len(next) == 0
}
