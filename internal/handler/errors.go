package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/hex-conquest/api/internal/repository"
	"github.com/freeeve/hex-conquest/api/internal/service"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

// statusFor maps a service error to the HTTP status returned to clients.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotInRoom), errors.Is(err, service.ErrNotCreator):
		return http.StatusForbidden
	case errors.Is(err, service.ErrRoomNotLobby), errors.Is(err, service.ErrRoomNotActive),
		errors.Is(err, service.ErrRoomFull), errors.Is(err, service.ErrNationTaken),
		errors.Is(err, service.ErrAlreadyJoined), errors.Is(err, service.ErrNoActiveTurn),
		errors.Is(err, repository.ErrIntakeClosed), errors.Is(err, repository.ErrStaleTurn):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidIntent), errors.Is(err, service.ErrUnknownNation),
		errors.Is(err, service.ErrInvalidRoomOptions), conquest.IsValidation(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with its mapped status. Unmapped errors are
// logged and reported without internals.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
