package httpapi

import (
	"errors"
	"net/http"

	"github.com/signalsfoundry/skywatch/internal/alerting"
	"github.com/signalsfoundry/skywatch/kb"
)

// statusForError maps surveillance errors onto HTTP status codes the same
// way the store's sentinels partition the failure space.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, kb.ErrAircraftNotFound),
		errors.Is(err, kb.ErrRestrictionNotFound),
		errors.Is(err, kb.ErrNotificationNotFound),
		errors.Is(err, kb.ErrDataSourceNotFound):
		return http.StatusNotFound

	case errors.Is(err, kb.ErrInvalidRecord):
		return http.StatusBadRequest

	case errors.Is(err, kb.ErrDuplicateCallsign):
		return http.StatusConflict

	case errors.Is(err, alerting.ErrPassInFlight):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
