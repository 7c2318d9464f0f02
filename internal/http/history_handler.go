package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/BerniPi/BGBB-IKT/internal/application"
	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
)

type historyService interface {
	MoveDevice(ctx context.Context, params application.MoveDeviceParams) (application.RoomAssignment, error)
	CorrectCurrentRoom(ctx context.Context, params application.CorrectRoomParams) (application.RoomAssignment, error)
	EndCurrentOccupancy(ctx context.Context, params application.EndOccupancyParams) (application.RoomAssignment, error)
	AddHistoricalInterval(ctx context.Context, params application.AddIntervalParams) (application.RoomAssignment, error)
	UpdateInterval(ctx context.Context, params application.UpdateIntervalParams) (application.RoomAssignment, error)
	DeleteInterval(ctx context.Context, params application.DeleteIntervalParams) error
	BulkMoveDevices(ctx context.Context, params application.BulkMoveParams) ([]application.RoomAssignment, error)
	BulkAddHistoricalInterval(ctx context.Context, params application.BulkAddIntervalParams) ([]application.RoomAssignment, error)
	ListHistory(ctx context.Context, deviceID string) ([]application.RoomAssignment, error)
	CurrentRoom(ctx context.Context, deviceID string) (application.RoomAssignment, bool, error)
}

// HistoryHandler serves the room history endpoints of a device.
type HistoryHandler struct {
	service   historyService
	responder responder
	logger    *slog.Logger
}

// NewHistoryHandler builds a HistoryHandler around the history service.
func NewHistoryHandler(service historyService, logger *slog.Logger) *HistoryHandler {
	base := defaultLogger(logger)
	return &HistoryHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *HistoryHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "HistoryHandler", operation, attrs...)
}

type assignmentDTO struct {
	ID         string          `json:"historyId"`
	DeviceID   string          `json:"deviceId"`
	RoomID     string          `json:"roomId"`
	RoomNumber string          `json:"roomNumber,omitempty"`
	RoomName   string          `json:"roomName,omitempty"`
	FromDate   occupancy.Date  `json:"fromDate"`
	ToDate     *occupancy.Date `json:"toDate"`
	Notes      *string         `json:"notes"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func toAssignmentDTO(a application.RoomAssignment) assignmentDTO {
	return assignmentDTO{
		ID:         a.ID,
		DeviceID:   a.DeviceID,
		RoomID:     a.RoomID,
		RoomNumber: a.RoomNumber,
		RoomName:   a.RoomName,
		FromDate:   a.FromDate,
		ToDate:     a.ToDate,
		Notes:      a.Notes,
		CreatedAt:  a.CreatedAt,
	}
}

func toAssignmentDTOs(items []application.RoomAssignment) []assignmentDTO {
	out := make([]assignmentDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toAssignmentDTO(item))
	}
	return out
}

type moveRequest struct {
	NewRoomID string  `json:"newRoomId" validate:"required"`
	MoveDate  string  `json:"moveDate" validate:"required,datetime=2006-01-02"`
	Notes     *string `json:"notes" validate:"omitempty,max=2000"`
}

type correctRoomRequest struct {
	NewRoomID string `json:"newRoomId" validate:"required"`
}

type endOccupancyRequest struct {
	ToDate string `json:"toDate" validate:"required,datetime=2006-01-02"`
}

type intervalRequest struct {
	RoomID   string  `json:"roomId" validate:"required"`
	FromDate string  `json:"fromDate" validate:"required,datetime=2006-01-02"`
	ToDate   *string `json:"toDate" validate:"omitempty,datetime=2006-01-02"`
	Notes    *string `json:"notes" validate:"omitempty,max=2000"`
}

func (req intervalRequest) toInput() (application.IntervalInput, error) {
	dates := &dateFields{}
	input := application.IntervalInput{
		RoomID:   strings.TrimSpace(req.RoomID),
		FromDate: dates.required("fromDate", req.FromDate),
		ToDate:   dates.optional("toDate", req.ToDate),
		Notes:    req.Notes,
	}
	return input, dates.err()
}

type updateIntervalRequest struct {
	RoomID   optionalString `json:"roomId"`
	FromDate optionalString `json:"fromDate"`
	ToDate   optionalString `json:"toDate"`
	Notes    optionalString `json:"notes"`
}

func (req updateIntervalRequest) toPatch() (application.IntervalPatch, error) {
	dates := &dateFields{}
	var patch application.IntervalPatch
	if req.RoomID.Set {
		room := ""
		if req.RoomID.Value != nil {
			room = *req.RoomID.Value
		}
		patch.RoomID = &room
	}
	if req.FromDate.Set {
		if req.FromDate.Value == nil {
			dates.fail("fromDate")
		} else {
			from := dates.required("fromDate", *req.FromDate.Value)
			patch.FromDate = &from
		}
	}
	if req.ToDate.Set {
		patch.ToDateSet = true
		patch.ToDate = dates.optional("toDate", req.ToDate.Value)
	}
	if req.Notes.Set {
		patch.NotesSet = true
		patch.Notes = req.Notes.Value
	}
	return patch, dates.err()
}

type bulkMoveRequest struct {
	DeviceIDs []string `json:"deviceIds" validate:"required,min=1,dive,required"`
	RoomID    string   `json:"roomId" validate:"required"`
	MoveDate  string   `json:"moveDate" validate:"required,datetime=2006-01-02"`
	Notes     *string  `json:"notes" validate:"omitempty,max=2000"`
}

type bulkIntervalRequest struct {
	DeviceIDs []string `json:"deviceIds" validate:"required,min=1,dive,required"`
	intervalRequest
}

type currentRoomResponse struct {
	DeviceID   string         `json:"deviceId"`
	Assignment *assignmentDTO `json:"assignment"`
}

func (h *HistoryHandler) Move(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID, ok := h.deviceID(w, r, "Move")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(ctx)

	var req moveRequest
	if !h.decode(w, r, "Move", &req, false) {
		return
	}
	dates := &dateFields{}
	moveDate := dates.required("moveDate", req.MoveDate)
	if err := dates.err(); err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	logger := h.log(ctx, "Move", "device_id", deviceID, "room_id", req.NewRoomID)
	assignment, err := h.service.MoveDevice(ctx, application.MoveDeviceParams{
		Principal: principal,
		DeviceID:  deviceID,
		NewRoomID: strings.TrimSpace(req.NewRoomID),
		MoveDate:  moveDate,
		Notes:     req.Notes,
	})
	if err != nil {
		logger.ErrorContext(ctx, "move failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	logger.With("history_id", assignment.ID).InfoContext(ctx, "device moved")
	h.responder.writeJSON(ctx, w, http.StatusOK, toAssignmentDTO(assignment))
}

func (h *HistoryHandler) CorrectCurrentRoom(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID, ok := h.deviceID(w, r, "CorrectCurrentRoom")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(ctx)

	var req correctRoomRequest
	if !h.decode(w, r, "CorrectCurrentRoom", &req, false) {
		return
	}

	assignment, err := h.service.CorrectCurrentRoom(ctx, application.CorrectRoomParams{
		Principal: principal,
		DeviceID:  deviceID,
		NewRoomID: strings.TrimSpace(req.NewRoomID),
	})
	if err != nil {
		h.log(ctx, "CorrectCurrentRoom", "device_id", deviceID).ErrorContext(ctx, "room correction failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toAssignmentDTO(assignment))
}

func (h *HistoryHandler) EndCurrentOccupancy(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID, ok := h.deviceID(w, r, "EndCurrentOccupancy")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(ctx)

	var req endOccupancyRequest
	if !h.decode(w, r, "EndCurrentOccupancy", &req, false) {
		return
	}
	dates := &dateFields{}
	toDate := dates.required("toDate", req.ToDate)
	if err := dates.err(); err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	assignment, err := h.service.EndCurrentOccupancy(ctx, application.EndOccupancyParams{
		Principal: principal,
		DeviceID:  deviceID,
		ToDate:    toDate,
	})
	if err != nil {
		h.log(ctx, "EndCurrentOccupancy", "device_id", deviceID).ErrorContext(ctx, "ending occupancy failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toAssignmentDTO(assignment))
}

func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID, ok := h.deviceID(w, r, "List")
	if !ok {
		return
	}

	history, err := h.service.ListHistory(ctx, deviceID)
	if err != nil {
		h.log(ctx, "List", "device_id", deviceID).ErrorContext(ctx, "listing history failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toAssignmentDTOs(history))
}

func (h *HistoryHandler) CurrentRoom(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID, ok := h.deviceID(w, r, "CurrentRoom")
	if !ok {
		return
	}

	assignment, found, err := h.service.CurrentRoom(ctx, deviceID)
	if err != nil {
		h.log(ctx, "CurrentRoom", "device_id", deviceID).ErrorContext(ctx, "current room lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	resp := currentRoomResponse{DeviceID: deviceID}
	if found {
		dto := toAssignmentDTO(assignment)
		resp.Assignment = &dto
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, resp)
}

func (h *HistoryHandler) Add(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID, ok := h.deviceID(w, r, "Add")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(ctx)

	var req intervalRequest
	if !h.decode(w, r, "Add", &req, false) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	logger := h.log(ctx, "Add", "device_id", deviceID, "room_id", input.RoomID)
	assignment, err := h.service.AddHistoricalInterval(ctx, application.AddIntervalParams{
		Principal: principal,
		DeviceID:  deviceID,
		Input:     input,
	})
	if err != nil {
		logger.ErrorContext(ctx, "adding history failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	logger.With("history_id", assignment.ID).InfoContext(ctx, "history entry added")
	h.responder.writeJSON(ctx, w, http.StatusCreated, toAssignmentDTO(assignment))
}

func (h *HistoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID, historyID, ok := h.historyIDs(w, r, "Update")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(ctx)

	var req updateIntervalRequest
	if !h.decode(w, r, "Update", &req, false) {
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	assignment, err := h.service.UpdateInterval(ctx, application.UpdateIntervalParams{
		Principal:      principal,
		DeviceID:       deviceID,
		HistoryEntryID: historyID,
		Patch:          patch,
	})
	if err != nil {
		h.log(ctx, "Update", "device_id", deviceID, "history_id", historyID).ErrorContext(ctx, "history update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toAssignmentDTO(assignment))
}

func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID, historyID, ok := h.historyIDs(w, r, "Delete")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(ctx)

	err := h.service.DeleteInterval(ctx, application.DeleteIntervalParams{
		Principal:      principal,
		DeviceID:       deviceID,
		HistoryEntryID: historyID,
	})
	if err != nil {
		h.log(ctx, "Delete", "device_id", deviceID, "history_id", historyID).ErrorContext(ctx, "history delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

func (h *HistoryHandler) BulkMove(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)

	var req bulkMoveRequest
	if !h.decode(w, r, "BulkMove", &req, false) {
		return
	}
	dates := &dateFields{}
	moveDate := dates.required("moveDate", req.MoveDate)
	if err := dates.err(); err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	logger := h.log(ctx, "BulkMove", "room_id", req.RoomID, "device_count", len(req.DeviceIDs))
	assignments, err := h.service.BulkMoveDevices(ctx, application.BulkMoveParams{
		Principal: principal,
		DeviceIDs: req.DeviceIDs,
		RoomID:    strings.TrimSpace(req.RoomID),
		MoveDate:  moveDate,
		Notes:     req.Notes,
	})
	if err != nil {
		logger.ErrorContext(ctx, "bulk move failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	logger.InfoContext(ctx, "devices moved")
	h.responder.writeJSON(ctx, w, http.StatusOK, toAssignmentDTOs(assignments))
}

func (h *HistoryHandler) BulkAdd(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)

	var req bulkIntervalRequest
	if !h.decode(w, r, "BulkAdd", &req, false) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	logger := h.log(ctx, "BulkAdd", "room_id", input.RoomID, "device_count", len(req.DeviceIDs))
	assignments, err := h.service.BulkAddHistoricalInterval(ctx, application.BulkAddIntervalParams{
		Principal: principal,
		DeviceIDs: req.DeviceIDs,
		Input:     input,
	})
	if err != nil {
		logger.ErrorContext(ctx, "bulk history insert failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	logger.InfoContext(ctx, "history entries added")
	h.responder.writeJSON(ctx, w, http.StatusCreated, toAssignmentDTOs(assignments))
}

func (h *HistoryHandler) deviceID(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing device id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDevice)
		return "", false
	}
	return id, true
}

func (h *HistoryHandler) historyIDs(w http.ResponseWriter, r *http.Request, operation string) (string, string, bool) {
	deviceID, ok := h.deviceID(w, r, operation)
	if !ok {
		return "", "", false
	}
	historyID := strings.TrimSpace(mux.Vars(r)["historyId"])
	if historyID == "" {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing history id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidHistory)
		return "", "", false
	}
	return deviceID, historyID, true
}

func (h *HistoryHandler) decode(w http.ResponseWriter, r *http.Request, operation string, dst any, allowEmpty bool) bool {
	return decodeAndValidate(w, r, h.responder, h.log(r.Context(), operation), dst, allowEmpty)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, resp responder, logger *slog.Logger, dst any, allowEmpty bool) bool {
	if err := decodeJSON(r, dst, allowEmpty); err != nil {
		logger.With("error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode request", "error", err)
		resp.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return false
	}
	if err := validateRequest(dst); err != nil {
		resp.handleServiceError(r.Context(), w, err)
		return false
	}
	return true
}
