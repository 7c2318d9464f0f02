package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/BerniPi/BGBB-IKT/internal/application"
	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
)

type deviceService interface {
	GetDevice(ctx context.Context, deviceID string) (application.Device, error)
	ListDevices(ctx context.Context, query application.DeviceQuery) ([]application.Device, error)
	CreateDevice(ctx context.Context, params application.CreateDeviceParams) (application.Device, error)
	UpdateDevice(ctx context.Context, params application.UpdateDeviceParams) (application.Device, error)
	DeleteDevice(ctx context.Context, params application.DeleteDeviceParams) error
	MarkInspected(ctx context.Context, params application.MarkInspectedParams) (application.Device, error)
	BulkMarkInspectedInRoom(ctx context.Context, params application.BulkMarkInspectedParams) (int64, error)
}

type activityService interface {
	ListActivity(ctx context.Context, principal application.Principal, query application.ActivityQuery) ([]application.ActivityEntry, error)
}

// DeviceHandler serves device records and inspection endpoints.
type DeviceHandler struct {
	service   deviceService
	responder responder
	logger    *slog.Logger
}

// NewDeviceHandler builds a DeviceHandler around the device service.
func NewDeviceHandler(service deviceService, logger *slog.Logger) *DeviceHandler {
	base := defaultLogger(logger)
	return &DeviceHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *DeviceHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "DeviceHandler", operation, attrs...)
}

type deviceDTO struct {
	ID              string          `json:"deviceId"`
	Hostname        *string         `json:"hostname"`
	SerialNumber    *string         `json:"serialNumber"`
	InventoryNumber *string         `json:"inventoryNumber"`
	Status          string          `json:"status"`
	LastInspected   *occupancy.Date `json:"lastInspected"`
	Notes           *string         `json:"notes"`
	CurrentRoomID   *string         `json:"currentRoomId"`
	RoomNumber      *string         `json:"roomNumber"`
	RoomName        *string         `json:"roomName"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func toDeviceDTO(d application.Device) deviceDTO {
	return deviceDTO{
		ID:              d.ID,
		Hostname:        d.Hostname,
		SerialNumber:    d.SerialNumber,
		InventoryNumber: d.InventoryNumber,
		Status:          d.Status,
		LastInspected:   d.LastInspected,
		Notes:           d.Notes,
		CurrentRoomID:   d.CurrentRoomID,
		RoomNumber:      d.CurrentRoomNumber,
		RoomName:        d.CurrentRoomName,
		CreatedAt:       d.CreatedAt,
	}
}

type createDeviceRequest struct {
	Hostname        *string `json:"hostname" validate:"omitempty,max=255"`
	SerialNumber    *string `json:"serialNumber" validate:"omitempty,max=255"`
	InventoryNumber *string `json:"inventoryNumber" validate:"omitempty,max=255"`
	Status          string  `json:"status" validate:"omitempty,max=32"`
	Notes           *string `json:"notes" validate:"omitempty,max=2000"`
	RoomID          string  `json:"roomId"`
	PlacedOn        *string `json:"placedOn" validate:"omitempty,datetime=2006-01-02"`
}

// updateDeviceRequest keeps absent fields apart from explicit nulls; a null
// clears the stored value.
type updateDeviceRequest struct {
	Hostname        optionalString `json:"hostname"`
	SerialNumber    optionalString `json:"serialNumber"`
	InventoryNumber optionalString `json:"inventoryNumber"`
	Status          *string        `json:"status" validate:"omitempty,max=32"`
	LastInspected   optionalString `json:"lastInspected"`
	Notes           optionalString `json:"notes"`
}

func (req updateDeviceRequest) toPatch() (application.DevicePatch, error) {
	dates := &dateFields{}
	patch := application.DevicePatch{
		HostnameSet:        req.Hostname.Set,
		Hostname:           req.Hostname.Value,
		SerialNumberSet:    req.SerialNumber.Set,
		SerialNumber:       req.SerialNumber.Value,
		InventoryNumberSet: req.InventoryNumber.Set,
		InventoryNumber:    req.InventoryNumber.Value,
		LastInspectedSet:   req.LastInspected.Set,
		LastInspected:      dates.optional("lastInspected", req.LastInspected.Value),
		NotesSet:           req.Notes.Set,
		Notes:              req.Notes.Value,
	}
	if req.Status != nil {
		patch.Status = *req.Status
	}
	return patch, dates.err()
}

type inspectionRequest struct {
	Date *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type roomInspectionRequest struct {
	RoomID string  `json:"roomId" validate:"required"`
	Date   *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type roomInspectionResponse struct {
	RoomID string `json:"roomId"`
	Count  int64  `json:"count"`
}

type activityDTO struct {
	ID         int64           `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Username   string          `json:"username"`
	ActionType string          `json:"actionType"`
	EntityType string          `json:"entityType,omitempty"`
	EntityID   *string         `json:"entityId"`
	Details    json.RawMessage `json:"details,omitempty"`
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID := strings.TrimSpace(mux.Vars(r)["id"])
	if deviceID == "" {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidDevice)
		return
	}

	device, err := h.service.GetDevice(ctx, deviceID)
	if err != nil {
		h.log(ctx, "Get", "device_id", deviceID).ErrorContext(ctx, "device lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toDeviceDTO(device))
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	values := r.URL.Query()
	query := application.DeviceQuery{
		RoomID: values.Get("roomId"),
		Status: values.Get("status"),
		Search: values.Get("q"),
	}

	devices, err := h.service.ListDevices(ctx, query)
	if err != nil {
		h.log(ctx, "List", "room_id", query.RoomID).ErrorContext(ctx, "listing devices failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	out := make([]deviceDTO, 0, len(devices))
	for _, d := range devices {
		out = append(out, toDeviceDTO(d))
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, out)
}

func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID := strings.TrimSpace(mux.Vars(r)["id"])
	if deviceID == "" {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidDevice)
		return
	}
	principal, _ := PrincipalFromContext(ctx)

	var req updateDeviceRequest
	if !decodeAndValidate(w, r, h.responder, h.log(ctx, "Update"), &req, false) {
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	device, err := h.service.UpdateDevice(ctx, application.UpdateDeviceParams{
		Principal: principal,
		DeviceID:  deviceID,
		Patch:     patch,
	})
	if err != nil {
		h.log(ctx, "Update", "device_id", deviceID).ErrorContext(ctx, "device update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toDeviceDTO(device))
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID := strings.TrimSpace(mux.Vars(r)["id"])
	if deviceID == "" {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidDevice)
		return
	}
	principal, _ := PrincipalFromContext(ctx)

	if err := h.service.DeleteDevice(ctx, application.DeleteDeviceParams{Principal: principal, DeviceID: deviceID}); err != nil {
		h.log(ctx, "Delete", "device_id", deviceID).ErrorContext(ctx, "device delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)

	var req createDeviceRequest
	if !decodeAndValidate(w, r, h.responder, h.log(ctx, "Create"), &req, false) {
		return
	}
	dates := &dateFields{}
	placedOn := dates.optional("placedOn", req.PlacedOn)
	if err := dates.err(); err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	params := application.CreateDeviceParams{
		Principal: principal,
		Input: application.DeviceInput{
			Hostname:        req.Hostname,
			SerialNumber:    req.SerialNumber,
			InventoryNumber: req.InventoryNumber,
			Status:          req.Status,
			Notes:           req.Notes,
		},
		InitialRoomID: strings.TrimSpace(req.RoomID),
	}
	if placedOn != nil {
		params.PlacedOn = *placedOn
	}

	logger := h.log(ctx, "Create", "room_id", params.InitialRoomID)
	device, err := h.service.CreateDevice(ctx, params)
	if err != nil {
		logger.ErrorContext(ctx, "device creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	logger.With("device_id", device.ID).InfoContext(ctx, "device created")
	h.responder.writeJSON(ctx, w, http.StatusCreated, toDeviceDTO(device))
}

func (h *DeviceHandler) MarkInspected(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	deviceID := strings.TrimSpace(mux.Vars(r)["id"])
	if deviceID == "" {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidDevice)
		return
	}
	principal, _ := PrincipalFromContext(ctx)

	var req inspectionRequest
	if !decodeAndValidate(w, r, h.responder, h.log(ctx, "MarkInspected"), &req, true) {
		return
	}
	dates := &dateFields{}
	day := dates.optional("date", req.Date)
	if err := dates.err(); err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	params := application.MarkInspectedParams{Principal: principal, DeviceID: deviceID}
	if day != nil {
		params.Date = *day
	}

	device, err := h.service.MarkInspected(ctx, params)
	if err != nil {
		h.log(ctx, "MarkInspected", "device_id", deviceID).ErrorContext(ctx, "inspection failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toDeviceDTO(device))
}

func (h *DeviceHandler) BulkMarkInspected(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)

	var req roomInspectionRequest
	if !decodeAndValidate(w, r, h.responder, h.log(ctx, "BulkMarkInspected"), &req, false) {
		return
	}
	dates := &dateFields{}
	day := dates.optional("date", req.Date)
	if err := dates.err(); err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	params := application.BulkMarkInspectedParams{Principal: principal, RoomID: strings.TrimSpace(req.RoomID)}
	if day != nil {
		params.Date = *day
	}

	logger := h.log(ctx, "BulkMarkInspected", "room_id", params.RoomID)
	count, err := h.service.BulkMarkInspectedInRoom(ctx, params)
	if err != nil {
		logger.ErrorContext(ctx, "room inspection failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	logger.InfoContext(ctx, "room inspected", "count", count)
	h.responder.writeJSON(ctx, w, http.StatusOK, roomInspectionResponse{RoomID: params.RoomID, Count: count})
}

// ActivityHandler lists the audit trail.
type ActivityHandler struct {
	service   activityService
	responder responder
	logger    *slog.Logger
}

// NewActivityHandler builds an ActivityHandler around the activity service.
func NewActivityHandler(service activityService, logger *slog.Logger) *ActivityHandler {
	base := defaultLogger(logger)
	return &ActivityHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	values := r.URL.Query()

	query := application.ActivityQuery{
		EntityType: values.Get("entityType"),
		EntityID:   values.Get("entityId"),
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.responder.handleServiceError(ctx, w, &application.ValidationError{FieldErrors: map[string]string{"limit": "must be a number"}})
			return
		}
		query.Limit = limit
	}

	entries, err := h.service.ListActivity(ctx, principal, query)
	if err != nil {
		handlerLogger(ctx, h.logger, "ActivityHandler", "List").ErrorContext(ctx, "listing activity failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	out := make([]activityDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityDTO{
			ID:         e.ID,
			Timestamp:  e.Timestamp,
			Username:   e.Username,
			ActionType: e.ActionType,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Details:    e.Details,
		})
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, out)
}
