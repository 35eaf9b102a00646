package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Dosada05/arena-tournaments/services"
	"github.com/go-chi/chi/v5"
)

type jsonResponse map[string]interface{}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	env := jsonResponse{"error": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.Error("failed to write error response", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", slog.String("path", r.URL.Path), slog.Any("error", err))
	errorResponse(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func notFoundResponse(w http.ResponseWriter, r *http.Request) {
	errorResponse(w, r, http.StatusNotFound, "the requested resource could not be found")
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, message)
}

func forbiddenResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusForbidden, message)
}

func getIDFromURL(r *http.Request, param string) (int, error) {
	idStr := chi.URLParam(r, param)
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s URL parameter", param)
	}
	return id, nil
}

// mapServiceErrorToHTTP converts service-layer errors into the HTTP
// error contract: 404 missing, 403 wrong caller, 400 validation and
// lifecycle violations, 500 anything unclassified.
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrTournamentNotFound):
		notFoundResponse(w, r)

	case errors.Is(err, services.ErrForbiddenOperation):
		forbiddenResponse(w, r, err.Error())

	case errors.Is(err, services.ErrTournamentNameRequired),
		errors.Is(err, services.ErrInvalidBracketSize),
		errors.Is(err, services.ErrInvalidEntryFee),
		errors.Is(err, services.ErrInvalidCommissionRate),
		errors.Is(err, services.ErrInvalidRegistrationWindow),
		errors.Is(err, services.ErrInvalidPrizeDistribution),
		errors.Is(err, services.ErrRegistrationClosed),
		errors.Is(err, services.ErrAlreadyRegistered),
		errors.Is(err, services.ErrTournamentFull),
		errors.Is(err, services.ErrJoinCodeInvalid),
		errors.Is(err, services.ErrTournamentNotStartable),
		errors.Is(err, services.ErrNotEnoughParticipants),
		errors.Is(err, services.ErrUnsupportedContentType):
		badRequestResponse(w, r, err)

	default:
		serverErrorResponse(w, r, err)
	}
}
