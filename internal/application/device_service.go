package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

var deviceStatuses = map[string]persistence.DeviceStatus{
	string(persistence.DeviceStatusActive):         persistence.DeviceStatusActive,
	string(persistence.DeviceStatusStorage):        persistence.DeviceStatusStorage,
	string(persistence.DeviceStatusDefective):      persistence.DeviceStatusDefective,
	string(persistence.DeviceStatusDecommissioned): persistence.DeviceStatusDecommissioned,
}

// DeviceService registers devices and records inspections.
type DeviceService struct {
	uow         persistence.UnitOfWork
	devices     persistence.DeviceReader
	audit       AuditRecorder
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewDeviceService wires dependencies for device operations.
func NewDeviceService(uow persistence.UnitOfWork, devices persistence.DeviceReader, recorder AuditRecorder, idGenerator func() string, now func() time.Time) *DeviceService {
	return NewDeviceServiceWithLogger(uow, devices, recorder, idGenerator, now, nil)
}

// NewDeviceServiceWithLogger wires dependencies with a specific logger.
func NewDeviceServiceWithLogger(uow persistence.UnitOfWork, devices persistence.DeviceReader, recorder AuditRecorder, idGenerator func() string, now func() time.Time, logger *slog.Logger) *DeviceService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &DeviceService{
		uow:         uow,
		devices:     devices,
		audit:       recorder,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *DeviceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "DeviceService", operation, attrs...)
}

func (s *DeviceService) today() occupancy.Date {
	return occupancy.DateOf(s.now())
}

// GetDevice returns a device together with its current room.
func (s *DeviceService) GetDevice(ctx context.Context, deviceID string) (Device, error) {
	if s == nil {
		return Device{}, fmt.Errorf("DeviceService is nil")
	}
	if s.devices == nil {
		return Device{}, fmt.Errorf("device reader not configured")
	}
	device, err := s.devices.GetDevice(ctx, deviceID)
	if errors.Is(err, persistence.ErrNotFound) {
		return Device{}, notFound("device %s", deviceID)
	}
	if err != nil {
		return Device{}, err
	}
	return fromPersistenceDevice(device), nil
}

// ListDevices returns the devices matching query with their current room.
func (s *DeviceService) ListDevices(ctx context.Context, query DeviceQuery) ([]Device, error) {
	if s == nil {
		return nil, fmt.Errorf("DeviceService is nil")
	}
	if s.devices == nil {
		return nil, fmt.Errorf("device reader not configured")
	}
	vErr := &ValidationError{}
	status := parseStatus(vErr, query.Status)
	if vErr.HasErrors() {
		return nil, vErr
	}

	rows, err := s.devices.ListDevices(ctx, persistence.DeviceFilter{
		RoomID: strings.TrimSpace(query.RoomID),
		Status: status,
		Search: strings.TrimSpace(query.Search),
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	devices := make([]Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, fromPersistenceDevice(row))
	}
	return devices, nil
}

// CreateDevice registers a device. When an initial room is given the device's
// first assignment is opened in the same transaction.
func (s *DeviceService) CreateDevice(ctx context.Context, params CreateDeviceParams) (device Device, err error) {
	if s == nil {
		err = fmt.Errorf("DeviceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateDevice",
		"principal", params.Principal.Username,
		"room_id", params.InitialRoomID,
	)
	defer func() {
		observeOperation("create_device", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create device", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("device_id", device.ID).InfoContext(ctx, "device created")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}

	input := params.Input
	vErr := &ValidationError{}
	status := parseStatus(vErr, input.Status)
	if status == "" {
		status = persistence.DeviceStatusActive
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	placedOn := params.PlacedOn
	if placedOn.IsZero() {
		placedOn = s.today()
	}
	roomID := strings.TrimSpace(params.InitialRoomID)

	now := s.now().UTC()
	row := persistence.Device{
		ID:              s.idGenerator(),
		Hostname:        normalizeNotes(input.Hostname),
		SerialNumber:    normalizeNotes(input.SerialNumber),
		InventoryNumber: normalizeNotes(input.InventoryNumber),
		Status:          status,
		Notes:           normalizeNotes(input.Notes),
		CreatedAt:       now,
	}

	var assignment *persistence.RoomAssignment
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		assignment = nil
		if roomID != "" {
			if err := ensureRoom(ctx, tx, "roomId", roomID); err != nil {
				return err
			}
		}
		if err := tx.InsertDevice(ctx, row); err != nil {
			return mapDeviceWriteError(err)
		}
		if roomID == "" {
			return nil
		}
		first := persistence.RoomAssignment{
			ID:        s.idGenerator(),
			DeviceID:  row.ID,
			RoomID:    roomID,
			FromDate:  placedOn,
			CreatedAt: now,
		}
		if err := tx.InsertInterval(ctx, first); err != nil {
			return mapStoreError(err)
		}
		assignment = &first
		return nil
	})
	if err != nil {
		return
	}

	device = fromPersistenceDevice(row)
	details := map[string]any{
		"action":   "create-device",
		"status":   string(row.Status),
		"hostname": row.Hostname,
	}
	if assignment != nil {
		device.CurrentRoomID = &assignment.RoomID
		details["roomId"] = assignment.RoomID
		details["fromDate"] = assignment.FromDate.String()
		details["historyEntryId"] = assignment.ID
	}
	s.record(ctx, params.Principal, persistence.ActionCreate, device.ID, details)
	return
}

// UpdateDevice rewrites the fields named in the patch. Unchanged values are
// neither written nor audited.
func (s *DeviceService) UpdateDevice(ctx context.Context, params UpdateDeviceParams) (device Device, err error) {
	if s == nil {
		err = fmt.Errorf("DeviceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateDevice",
		"principal", params.Principal.Username,
		"device_id", params.DeviceID,
	)
	defer func() {
		observeOperation("update_device", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to update device", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "device updated")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}
	if strings.TrimSpace(params.DeviceID) == "" {
		err = fieldError("deviceId", "is required")
		return
	}

	patch := params.Patch
	vErr := &ValidationError{}
	status := parseStatus(vErr, patch.Status)
	if patch.LastInspectedSet && patch.LastInspected != nil && patch.LastInspected.IsZero() {
		vErr.add("lastInspected", "must be a valid date (YYYY-MM-DD)")
	}
	if !patch.touchesAnything() {
		vErr.add("body", "no fields to update")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var (
		row     persistence.Device
		changes map[string]any
	)
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		current, err := loadDevice(ctx, tx, params.DeviceID)
		if err != nil {
			return err
		}
		proposed := applyDevicePatch(current, patch, status)
		changes = diffDevices(current, proposed)
		row = proposed
		if len(changes) == 0 {
			return nil
		}
		return mapDeviceWriteError(tx.UpdateDevice(ctx, proposed))
	})
	if err != nil {
		return
	}

	device = fromPersistenceDevice(row)
	if len(changes) > 0 {
		changes["action"] = "update-device"
		s.record(ctx, params.Principal, persistence.ActionUpdate, row.ID, changes)
	}
	return
}

// DeleteDevice removes a device together with its whole room history. The
// audit record keeps a snapshot of the device and the room it was last in.
func (s *DeviceService) DeleteDevice(ctx context.Context, params DeleteDeviceParams) (err error) {
	if s == nil {
		return fmt.Errorf("DeviceService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteDevice",
		"principal", params.Principal.Username,
		"device_id", params.DeviceID,
	)
	defer func() {
		observeOperation("delete_device", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete device", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "device deleted")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}
	if strings.TrimSpace(params.DeviceID) == "" {
		err = fieldError("deviceId", "is required")
		return
	}

	var (
		snapshot persistence.Device
		removed  int64
	)
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		current, err := loadDevice(ctx, tx, params.DeviceID)
		if err != nil {
			return err
		}
		snapshot = current
		removed, err = tx.DeleteDevice(ctx, current.ID)
		return mapStoreError(err)
	})
	if err != nil {
		return
	}

	details := map[string]any{
		"action":                "delete-device",
		"historyEntriesRemoved": removed,
	}
	setIfPresent(details, "hostname", snapshot.Hostname)
	setIfPresent(details, "serialNumber", snapshot.SerialNumber)
	setIfPresent(details, "inventoryNumber", snapshot.InventoryNumber)
	if room := lastRoomLabel(snapshot); room != "" {
		details["lastRoom"] = room
	}
	s.record(ctx, params.Principal, persistence.ActionDelete, snapshot.ID, details)
	return
}

// MarkInspected stamps the device's last inspection date.
func (s *DeviceService) MarkInspected(ctx context.Context, params MarkInspectedParams) (device Device, err error) {
	if s == nil {
		err = fmt.Errorf("DeviceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "MarkInspected",
		"principal", params.Principal.Username,
		"device_id", params.DeviceID,
	)
	defer func() {
		observeOperation("mark_inspected", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark device inspected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "device marked inspected")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}
	if strings.TrimSpace(params.DeviceID) == "" {
		err = fieldError("deviceId", "is required")
		return
	}

	date := params.Date
	if date.IsZero() {
		date = s.today()
	}

	var (
		row      persistence.Device
		previous *occupancy.Date
		changed  bool
	)
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		current, err := loadDevice(ctx, tx, params.DeviceID)
		if err != nil {
			return err
		}
		row = current
		previous = current.LastInspected
		changed = !sameDate(previous, &date)
		if !changed {
			return nil
		}
		if err := tx.SetLastInspected(ctx, params.DeviceID, date); err != nil {
			return mapStoreError(err)
		}
		row.LastInspected = occupancy.DatePtr(date)
		return nil
	})
	if err != nil {
		return
	}

	device = fromPersistenceDevice(row)
	if changed {
		s.record(ctx, params.Principal, persistence.ActionUpdate, params.DeviceID, map[string]any{
			"action":        "mark-inspected",
			"lastInspected": change(dateValue(previous), date.String()),
		})
	}
	return
}

// BulkMarkInspectedInRoom stamps every device located in the room on the
// given date and returns how many were updated.
func (s *DeviceService) BulkMarkInspectedInRoom(ctx context.Context, params BulkMarkInspectedParams) (count int64, err error) {
	if s == nil {
		err = fmt.Errorf("DeviceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "BulkMarkInspectedInRoom",
		"principal", params.Principal.Username,
		"room_id", params.RoomID,
	)
	defer func() {
		observeOperation("bulk_mark_inspected", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark room inspected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("count", count).InfoContext(ctx, "room marked inspected")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}
	if strings.TrimSpace(params.RoomID) == "" {
		err = fieldError("roomId", "is required")
		return
	}

	date := params.Date
	if date.IsZero() {
		date = s.today()
	}

	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		if err := ensureRoom(ctx, tx, "roomId", params.RoomID); err != nil {
			return err
		}
		n, err := tx.MarkInspectedInRoom(ctx, params.RoomID, date)
		if err != nil {
			return mapStoreError(err)
		}
		count = n
		return nil
	})
	if err != nil {
		count = 0
		return
	}

	if count > 0 {
		s.record(ctx, params.Principal, persistence.ActionBulkUpdate, "", map[string]any{
			"action": "bulk-mark-inspected",
			"roomId": params.RoomID,
			"date":   date.String(),
			"count":  count,
		})
	}
	return
}

func (p DevicePatch) touchesAnything() bool {
	return p.HostnameSet || p.SerialNumberSet || p.InventoryNumberSet ||
		p.Status != "" || p.LastInspectedSet || p.NotesSet
}

func applyDevicePatch(current persistence.Device, patch DevicePatch, status persistence.DeviceStatus) persistence.Device {
	proposed := current
	if patch.HostnameSet {
		proposed.Hostname = normalizeNotes(patch.Hostname)
	}
	if patch.SerialNumberSet {
		proposed.SerialNumber = normalizeNotes(patch.SerialNumber)
	}
	if patch.InventoryNumberSet {
		proposed.InventoryNumber = normalizeNotes(patch.InventoryNumber)
	}
	if status != "" {
		proposed.Status = status
	}
	if patch.LastInspectedSet {
		proposed.LastInspected = patch.LastInspected
	}
	if patch.NotesSet {
		proposed.Notes = normalizeNotes(patch.Notes)
	}
	return proposed
}

// diffDevices lists changed fields as {old, new} pairs. Notes are masked.
func diffDevices(before, after persistence.Device) map[string]any {
	changes := map[string]any{}
	if !sameString(before.Hostname, after.Hostname) {
		changes["hostname"] = change(textValue(before.Hostname), textValue(after.Hostname))
	}
	if !sameString(before.SerialNumber, after.SerialNumber) {
		changes["serialNumber"] = change(textValue(before.SerialNumber), textValue(after.SerialNumber))
	}
	if !sameString(before.InventoryNumber, after.InventoryNumber) {
		changes["inventoryNumber"] = change(textValue(before.InventoryNumber), textValue(after.InventoryNumber))
	}
	if before.Status != after.Status {
		changes["status"] = change(string(before.Status), string(after.Status))
	}
	if !sameDate(before.LastInspected, after.LastInspected) {
		changes["lastInspected"] = change(dateValue(before.LastInspected), dateValue(after.LastInspected))
	}
	if !sameString(before.Notes, after.Notes) {
		changes["notes"] = change(maskNote(before.Notes), maskNote(after.Notes))
	}
	return changes
}

// parseStatus returns the status named by raw, or "" when raw is empty or
// unknown. Unknown values are recorded on vErr.
func parseStatus(vErr *ValidationError, raw string) persistence.DeviceStatus {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	status, ok := deviceStatuses[raw]
	if !ok {
		vErr.add("status", "must be one of active, storage, defective, decommissioned")
	}
	return status
}

// lastRoomLabel renders the device's current room as "number (name)",
// falling back to whichever label or the room id is known.
func lastRoomLabel(d persistence.Device) string {
	number, name := stringValue(d.CurrentRoomNumber), stringValue(d.CurrentRoomName)
	switch {
	case number != nil && name != nil:
		return fmt.Sprintf("%s (%s)", *number, *name)
	case number != nil:
		return *number
	case name != nil:
		return *name
	case d.CurrentRoomID != nil:
		return *d.CurrentRoomID
	}
	return ""
}

func loadDevice(ctx context.Context, tx persistence.Tx, deviceID string) (persistence.Device, error) {
	device, err := tx.GetDevice(ctx, deviceID)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.Device{}, notFound("device %s", deviceID)
	}
	if err != nil {
		return persistence.Device{}, mapStoreError(err)
	}
	return device, nil
}

func mapDeviceWriteError(err error) error {
	if errors.Is(err, persistence.ErrDuplicate) {
		return fmt.Errorf("%w: device with the same hostname, serial or inventory number exists", ErrConflict)
	}
	return mapStoreError(err)
}

func stringValue(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}

func textValue(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func setIfPresent(details map[string]any, key string, value *string) {
	if v := stringValue(value); v != nil {
		details[key] = *v
	}
}

func (s *DeviceService) record(ctx context.Context, principal Principal, action persistence.ActionType, entityID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, auditRecord(principal, action, entityID, details))
}
