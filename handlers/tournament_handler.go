package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Dosada05/arena-tournaments/middleware"
	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/services"
)

// Action is the closed set of operations the tournament endpoint
// accepts. Anything else is rejected before reaching business logic.
type Action string

const (
	ActionCreate Action = "create"
	ActionJoin   Action = "join"
	ActionStart  Action = "start"
	ActionGet    Action = "get"
	ActionList   Action = "list"
)

type createRequest struct {
	Action                Action             `json:"action"`
	Name                  string             `json:"name"`
	Description           *string            `json:"description"`
	TournamentSize        int                `json:"tournamentSize"`
	EntryFee              float64            `json:"entryFee"`
	CommissionRate        float64            `json:"commissionRate"`
	RegistrationStart     time.Time          `json:"registrationStart"`
	RegistrationEnd       time.Time          `json:"registrationEnd"`
	StartTime             *time.Time         `json:"startTime"`
	StartWhenFull         bool               `json:"startWhenFull"`
	JoinCode              string             `json:"joinCode"`
	PrizeDistributionType string             `json:"prizeDistributionType"`
	PrizeDistribution     []models.PrizeSlot `json:"prizeDistribution"`
}

type joinRequest struct {
	Action       Action `json:"action"`
	TournamentID int    `json:"tournamentId"`
	JoinCode     string `json:"joinCode"`
}

type startRequest struct {
	Action       Action `json:"action"`
	TournamentID int    `json:"tournamentId"`
}

type getRequest struct {
	Action       Action `json:"action"`
	TournamentID int    `json:"tournamentId"`
}

type listRequest struct {
	Action Action  `json:"action"`
	Status *string `json:"status"`
	Limit  *int    `json:"limit"`
	Offset *int    `json:"offset"`
}

type TournamentHandler struct {
	tournamentService services.TournamentService
}

func NewTournamentHandler(ts services.TournamentService) *TournamentHandler {
	return &TournamentHandler{tournamentService: ts}
}

const maxRequestBody = 1 << 20 // 1MB

// Dispatch handles POST /api/tournament. The body carries an action
// discriminator plus the action's own fields; each action decodes into
// its own request type.
func (h *TournamentHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		badRequestResponse(w, r, fmt.Errorf("failed to read request body: %w", err))
		return
	}

	var envelope struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		badRequestResponse(w, r, errors.New("body contains badly-formed JSON"))
		return
	}

	switch envelope.Action {
	case ActionCreate:
		h.create(w, r, body)
	case ActionJoin:
		h.join(w, r, body)
	case ActionStart:
		h.start(w, r, body)
	case ActionGet:
		h.get(w, r, body)
	case ActionList:
		h.list(w, r, body)
	default:
		badRequestResponse(w, r, fmt.Errorf("unknown action %q", envelope.Action))
	}
}

func decodeAction(body []byte, dst interface{}) error {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var unmarshalTypeError *json.UnmarshalTypeError
		switch {
		case errors.As(err, &unmarshalTypeError) && unmarshalTypeError.Field != "":
			return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		default:
			return errors.New("body contains badly-formed JSON")
		}
	}
	return nil
}

func (h *TournamentHandler) create(w http.ResponseWriter, r *http.Request, body []byte) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to create tournament")
		return
	}

	var req createRequest
	if err := decodeAction(body, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.Create(r.Context(), currentUserID, services.CreateTournamentInput{
		Name:                  req.Name,
		Description:           req.Description,
		BracketSize:           req.TournamentSize,
		EntryFee:              req.EntryFee,
		CommissionRate:        req.CommissionRate,
		RegistrationStart:     req.RegistrationStart,
		RegistrationEnd:       req.RegistrationEnd,
		StartTime:             req.StartTime,
		StartWhenFull:         req.StartWhenFull,
		JoinCode:              req.JoinCode,
		PrizeDistributionType: req.PrizeDistributionType,
		PrizeDistribution:     req.PrizeDistribution,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"success": true, "tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) join(w http.ResponseWriter, r *http.Request, body []byte) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to join tournament")
		return
	}

	var req joinRequest
	if err := decodeAction(body, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if req.TournamentID <= 0 {
		badRequestResponse(w, r, errors.New("tournamentId is required"))
		return
	}

	participant, err := h.tournamentService.Join(r.Context(), currentUserID, services.JoinTournamentInput{
		TournamentID: req.TournamentID,
		JoinCode:     req.JoinCode,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"success": true, "participant": participant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) start(w http.ResponseWriter, r *http.Request, body []byte) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to start tournament")
		return
	}

	var req startRequest
	if err := decodeAction(body, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if req.TournamentID <= 0 {
		badRequestResponse(w, r, errors.New("tournamentId is required"))
		return
	}

	matches, err := h.tournamentService.Start(r.Context(), currentUserID, req.TournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"success": true, "matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) get(w http.ResponseWriter, r *http.Request, body []byte) {
	var req getRequest
	if err := decodeAction(body, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if req.TournamentID <= 0 {
		badRequestResponse(w, r, errors.New("tournamentId is required"))
		return
	}

	tournament, err := h.tournamentService.Get(r.Context(), req.TournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) list(w http.ResponseWriter, r *http.Request, body []byte) {
	var req listRequest
	if err := decodeAction(body, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	filter := services.ListTournamentsFilter{}
	if req.Status != nil && *req.Status != "" {
		status := models.TournamentStatus(*req.Status)
		switch status {
		case models.StatusRegistration, models.StatusInProgress, models.StatusCompleted:
			filter.Status = &status
		default:
			badRequestResponse(w, r, fmt.Errorf("invalid status filter %q", *req.Status))
			return
		}
	}
	if req.Limit != nil {
		if *req.Limit <= 0 {
			badRequestResponse(w, r, errors.New("limit must be positive"))
			return
		}
		filter.Limit = *req.Limit
	}
	if req.Offset != nil {
		if *req.Offset < 0 {
			badRequestResponse(w, r, errors.New("offset cannot be negative"))
			return
		}
		filter.Offset = *req.Offset
	}

	tournaments, total, err := h.tournamentService.List(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments, "total": total}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UploadBanner handles PUT /api/tournaments/{tournamentID}/banner.
func (h *TournamentHandler) UploadBanner(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to upload banner")
		return
	}

	contentType := r.Header.Get("Content-Type")
	body := http.MaxBytesReader(w, r.Body, 5<<20) // 5MB cap on banners
	defer body.Close()

	tournament, err := h.tournamentService.UploadBanner(r.Context(), currentUserID, tournamentID, contentType, body)
	if err != nil {
		if errors.Is(err, services.ErrUploaderUnavailable) {
			errorResponse(w, r, http.StatusServiceUnavailable, err.Error())
			return
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
