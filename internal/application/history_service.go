package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BerniPi/BGBB-IKT/internal/audit"
	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

const entityDevice = "device"

// AuditRecorder accepts audit records after a mutation has committed.
type AuditRecorder interface {
	Record(ctx context.Context, rec audit.Record)
}

// HistoryReader serves the read side of room history.
type HistoryReader interface {
	persistence.HistoryReader
	persistence.DeviceReader
}

// HistoryService maintains device room histories.
type HistoryService struct {
	uow         persistence.UnitOfWork
	reader      HistoryReader
	audit       AuditRecorder
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewHistoryService wires dependencies for room history operations.
func NewHistoryService(uow persistence.UnitOfWork, reader HistoryReader, recorder AuditRecorder, idGenerator func() string, now func() time.Time) *HistoryService {
	return NewHistoryServiceWithLogger(uow, reader, recorder, idGenerator, now, nil)
}

// NewHistoryServiceWithLogger wires dependencies with a specific logger.
func NewHistoryServiceWithLogger(uow persistence.UnitOfWork, reader HistoryReader, recorder AuditRecorder, idGenerator func() string, now func() time.Time, logger *slog.Logger) *HistoryService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &HistoryService{
		uow:         uow,
		reader:      reader,
		audit:       recorder,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *HistoryService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "HistoryService", operation, attrs...)
}

func (s *HistoryService) record(ctx context.Context, principal Principal, action persistence.ActionType, entityID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, auditRecord(principal, action, entityID, details))
}

func auditRecord(principal Principal, action persistence.ActionType, entityID string, details map[string]any) audit.Record {
	return audit.Record{
		Actor:      principal.Username,
		Action:     action,
		EntityType: entityDevice,
		EntityID:   entityID,
		Details:    details,
	}
}

// MoveDevice closes the device's current assignment on the move date and
// opens a new one in the target room starting that same day.
func (s *HistoryService) MoveDevice(ctx context.Context, params MoveDeviceParams) (assignment RoomAssignment, err error) {
	if s == nil {
		err = fmt.Errorf("HistoryService is nil")
		return
	}

	logger := s.loggerWith(ctx, "MoveDevice",
		"principal", params.Principal.Username,
		"device_id", params.DeviceID,
		"room_id", params.NewRoomID,
	)
	defer func() {
		observeOperation("move_device", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to move device", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("history_id", assignment.ID).InfoContext(ctx, "device moved")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}

	vErr := &ValidationError{}
	requireField(vErr, "deviceId", params.DeviceID)
	requireField(vErr, "newRoomId", params.NewRoomID)
	requireDate(vErr, "moveDate", params.MoveDate)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var row persistence.RoomAssignment
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		if err := ensureDevice(ctx, tx, params.DeviceID); err != nil {
			return err
		}
		if err := ensureRoom(ctx, tx, "newRoomId", params.NewRoomID); err != nil {
			return err
		}
		var err error
		row, err = s.moveInTx(ctx, tx, params.DeviceID, params.NewRoomID, params.MoveDate, params.Notes)
		return err
	})
	if err != nil {
		return
	}

	assignment = fromPersistenceAssignment(row)
	s.record(ctx, params.Principal, persistence.ActionMove, params.DeviceID, map[string]any{
		"action":         "move-to-room",
		"newRoomId":      params.NewRoomID,
		"moveDate":       params.MoveDate.String(),
		"historyEntryId": row.ID,
	})
	return
}

// CorrectCurrentRoom rewrites the room of the device's most recent assignment
// without touching its dates.
func (s *HistoryService) CorrectCurrentRoom(ctx context.Context, params CorrectRoomParams) (assignment RoomAssignment, err error) {
	if s == nil {
		err = fmt.Errorf("HistoryService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CorrectCurrentRoom",
		"principal", params.Principal.Username,
		"device_id", params.DeviceID,
		"room_id", params.NewRoomID,
	)
	defer func() {
		observeOperation("correct_current_room", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to correct current room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("history_id", assignment.ID).InfoContext(ctx, "current room corrected")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}

	vErr := &ValidationError{}
	requireField(vErr, "deviceId", params.DeviceID)
	requireField(vErr, "newRoomId", params.NewRoomID)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var (
		row     persistence.RoomAssignment
		oldRoom string
	)
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		if err := ensureDevice(ctx, tx, params.DeviceID); err != nil {
			return err
		}
		if err := ensureRoom(ctx, tx, "newRoomId", params.NewRoomID); err != nil {
			return err
		}
		latest, err := tx.FindMostRecentInterval(ctx, params.DeviceID)
		if errors.Is(err, persistence.ErrNotFound) {
			return notFound("device %s has no room assignment", params.DeviceID)
		}
		if err != nil {
			return mapStoreError(err)
		}
		oldRoom = latest.RoomID
		row = latest
		if latest.RoomID == params.NewRoomID {
			return nil
		}
		row.RoomID = params.NewRoomID
		return mapStoreError(tx.UpdateInterval(ctx, row))
	})
	if err != nil {
		return
	}

	assignment = fromPersistenceAssignment(row)
	if oldRoom != params.NewRoomID {
		s.record(ctx, params.Principal, persistence.ActionUpdate, params.DeviceID, map[string]any{
			"action":         "correct-current-room",
			"historyEntryId": row.ID,
			"roomId":         change(oldRoom, params.NewRoomID),
		})
	}
	return
}

// EndCurrentOccupancy closes the device's open assignment on toDate and
// leaves the device without a room.
func (s *HistoryService) EndCurrentOccupancy(ctx context.Context, params EndOccupancyParams) (assignment RoomAssignment, err error) {
	if s == nil {
		err = fmt.Errorf("HistoryService is nil")
		return
	}

	logger := s.loggerWith(ctx, "EndCurrentOccupancy",
		"principal", params.Principal.Username,
		"device_id", params.DeviceID,
	)
	defer func() {
		observeOperation("end_current_occupancy", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to end current occupancy", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("history_id", assignment.ID).InfoContext(ctx, "occupancy ended")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}

	vErr := &ValidationError{}
	requireField(vErr, "deviceId", params.DeviceID)
	requireDate(vErr, "toDate", params.ToDate)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var row persistence.RoomAssignment
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		if err := ensureDevice(ctx, tx, params.DeviceID); err != nil {
			return err
		}
		open, err := tx.FindOpenIntervals(ctx, params.DeviceID)
		if err != nil {
			return mapStoreError(err)
		}
		if len(open) == 0 {
			return notFound("device %s has no current room", params.DeviceID)
		}
		for _, candidate := range open {
			if params.ToDate.Before(candidate.FromDate) {
				return fieldError("toDate", fmt.Sprintf("must not be before %s", candidate.FromDate))
			}
		}
		for _, candidate := range open {
			if err := tx.CloseInterval(ctx, candidate.ID, params.ToDate); err != nil {
				return mapStoreError(err)
			}
		}
		row = open[0]
		row.ToDate = occupancy.DatePtr(params.ToDate)
		return nil
	})
	if err != nil {
		return
	}

	assignment = fromPersistenceAssignment(row)
	s.record(ctx, params.Principal, persistence.ActionUpdate, params.DeviceID, map[string]any{
		"action":         "end-current-room",
		"historyEntryId": row.ID,
		"toDate":         params.ToDate.String(),
	})
	return
}

// AddHistoricalInterval inserts an arbitrary interval, trimming earlier
// assignments that would run into it.
func (s *HistoryService) AddHistoricalInterval(ctx context.Context, params AddIntervalParams) (assignment RoomAssignment, err error) {
	if s == nil {
		err = fmt.Errorf("HistoryService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AddHistoricalInterval",
		"principal", params.Principal.Username,
		"device_id", params.DeviceID,
		"room_id", params.Input.RoomID,
	)
	defer func() {
		observeOperation("add_historical_interval", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to add historical interval", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("history_id", assignment.ID).InfoContext(ctx, "historical interval added")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}

	vErr := &ValidationError{}
	requireField(vErr, "deviceId", params.DeviceID)
	validateIntervalInput(vErr, params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var row persistence.RoomAssignment
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		if err := ensureDevice(ctx, tx, params.DeviceID); err != nil {
			return err
		}
		if err := ensureRoom(ctx, tx, "roomId", params.Input.RoomID); err != nil {
			return err
		}
		var err error
		row, err = s.insertInTx(ctx, tx, params.DeviceID, params.Input)
		return err
	})
	if err != nil {
		return
	}

	assignment = fromPersistenceAssignment(row)
	s.record(ctx, params.Principal, persistence.ActionCreate, params.DeviceID, map[string]any{
		"action":         "add-room-history",
		"historyEntryId": row.ID,
		"roomId":         row.RoomID,
		"fromDate":       row.FromDate.String(),
		"toDate":         dateValue(row.ToDate),
	})
	return
}

// UpdateInterval edits a single history entry in place. Overlaps with other
// entries of the device are rejected, never trimmed; only a handover day the
// entry already shares with a neighbour survives the edit.
func (s *HistoryService) UpdateInterval(ctx context.Context, params UpdateIntervalParams) (assignment RoomAssignment, err error) {
	if s == nil {
		err = fmt.Errorf("HistoryService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateInterval",
		"principal", params.Principal.Username,
		"device_id", params.DeviceID,
		"history_id", params.HistoryEntryID,
	)
	defer func() {
		observeOperation("update_interval", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to update interval", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "interval updated")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}
	if strings.TrimSpace(params.HistoryEntryID) == "" {
		err = fieldError("historyEntryId", "is required")
		return
	}

	var (
		row     persistence.RoomAssignment
		changes map[string]any
	)
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		existing, err := s.loadEntry(ctx, tx, params.DeviceID, params.HistoryEntryID)
		if err != nil {
			return err
		}

		proposed, vErr := applyPatch(existing, params.Patch)
		if vErr.HasErrors() {
			return vErr
		}
		if proposed.RoomID != existing.RoomID {
			if err := ensureRoom(ctx, tx, "roomId", proposed.RoomID); err != nil {
				return err
			}
		}

		changes = diffAssignments(existing, proposed)
		row = proposed
		if len(changes) == 0 {
			return nil
		}

		others, err := tx.FindOverlapping(ctx, existing.DeviceID, proposed.Interval(), existing.ID)
		if err != nil {
			return mapStoreError(err)
		}
		if conflicts := occupancy.DetectEditConflicts(toAssignments(others), existing.Assignment(), proposed.Assignment()); len(conflicts) > 0 {
			return conflictWith(conflicts)
		}
		return mapStoreError(tx.UpdateInterval(ctx, proposed))
	})
	if err != nil {
		return
	}

	assignment = fromPersistenceAssignment(row)
	if len(changes) > 0 {
		changes["action"] = "update-room-history"
		changes["historyEntryId"] = row.ID
		s.record(ctx, params.Principal, persistence.ActionUpdate, row.DeviceID, changes)
	}
	return
}

// DeleteInterval removes a single history entry.
func (s *HistoryService) DeleteInterval(ctx context.Context, params DeleteIntervalParams) (err error) {
	if s == nil {
		return fmt.Errorf("HistoryService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteInterval",
		"principal", params.Principal.Username,
		"device_id", params.DeviceID,
		"history_id", params.HistoryEntryID,
	)
	defer func() {
		observeOperation("delete_interval", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete interval", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "interval deleted")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}
	if strings.TrimSpace(params.HistoryEntryID) == "" {
		err = fieldError("historyEntryId", "is required")
		return
	}

	var removed persistence.RoomAssignment
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		existing, err := s.loadEntry(ctx, tx, params.DeviceID, params.HistoryEntryID)
		if err != nil {
			return err
		}
		removed = existing
		if err := tx.DeleteInterval(ctx, existing.ID); err != nil {
			return mapStoreError(err)
		}
		return nil
	})
	if err != nil {
		return
	}

	s.record(ctx, params.Principal, persistence.ActionDelete, removed.DeviceID, map[string]any{
		"action":         "delete-room-history",
		"historyEntryId": removed.ID,
		"deletedEntry": map[string]any{
			"roomId":   removed.RoomID,
			"fromDate": removed.FromDate.String(),
			"toDate":   dateValue(removed.ToDate),
		},
	})
	return
}

// BulkMoveDevices moves every listed device into one room. The batch commits
// as a whole or not at all.
func (s *HistoryService) BulkMoveDevices(ctx context.Context, params BulkMoveParams) (assignments []RoomAssignment, err error) {
	if s == nil {
		err = fmt.Errorf("HistoryService is nil")
		return
	}

	deviceIDs := uniqueIDs(params.DeviceIDs)
	logger := s.loggerWith(ctx, "BulkMoveDevices",
		"principal", params.Principal.Username,
		"room_id", params.RoomID,
		"device_count", len(deviceIDs),
	)
	defer func() {
		observeOperation("bulk_move_devices", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to move devices", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "devices moved")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}

	vErr := &ValidationError{}
	if len(deviceIDs) == 0 {
		vErr.add("deviceIds", "at least one device is required")
	}
	requireField(vErr, "roomId", params.RoomID)
	requireDate(vErr, "moveDate", params.MoveDate)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var rows []persistence.RoomAssignment
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		rows = rows[:0]
		if err := ensureRoom(ctx, tx, "roomId", params.RoomID); err != nil {
			return err
		}
		for _, deviceID := range deviceIDs {
			if err := ensureDevice(ctx, tx, deviceID); err != nil {
				return err
			}
			row, err := s.moveInTx(ctx, tx, deviceID, params.RoomID, params.MoveDate, params.Notes)
			if err != nil {
				return fmt.Errorf("device %s: %w", deviceID, err)
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return
	}

	assignments = make([]RoomAssignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, fromPersistenceAssignment(row))
	}
	s.record(ctx, params.Principal, persistence.ActionBulkUpdate, "", map[string]any{
		"action":    "bulk-move",
		"roomId":    params.RoomID,
		"moveDate":  params.MoveDate.String(),
		"deviceIds": deviceIDs,
		"count":     len(rows),
	})
	return
}

// BulkAddHistoricalInterval inserts the same interval for every listed device
// inside one transaction.
func (s *HistoryService) BulkAddHistoricalInterval(ctx context.Context, params BulkAddIntervalParams) (assignments []RoomAssignment, err error) {
	if s == nil {
		err = fmt.Errorf("HistoryService is nil")
		return
	}

	deviceIDs := uniqueIDs(params.DeviceIDs)
	logger := s.loggerWith(ctx, "BulkAddHistoricalInterval",
		"principal", params.Principal.Username,
		"room_id", params.Input.RoomID,
		"device_count", len(deviceIDs),
	)
	defer func() {
		observeOperation("bulk_add_historical_interval", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to add historical intervals", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "historical intervals added")
	}()

	if err = requirePrincipal(params.Principal); err != nil {
		return
	}

	vErr := &ValidationError{}
	if len(deviceIDs) == 0 {
		vErr.add("deviceIds", "at least one device is required")
	}
	validateIntervalInput(vErr, params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var rows []persistence.RoomAssignment
	err = s.uow.WithinTx(ctx, func(tx persistence.Tx) error {
		rows = rows[:0]
		if err := ensureRoom(ctx, tx, "roomId", params.Input.RoomID); err != nil {
			return err
		}
		for _, deviceID := range deviceIDs {
			if err := ensureDevice(ctx, tx, deviceID); err != nil {
				return err
			}
			row, err := s.insertInTx(ctx, tx, deviceID, params.Input)
			if err != nil {
				return fmt.Errorf("device %s: %w", deviceID, err)
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return
	}

	assignments = make([]RoomAssignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, fromPersistenceAssignment(row))
	}
	s.record(ctx, params.Principal, persistence.ActionBulkUpdate, "", map[string]any{
		"action":    "bulk-add-room-history",
		"roomId":    params.Input.RoomID,
		"fromDate":  params.Input.FromDate.String(),
		"toDate":    dateValue(params.Input.ToDate),
		"deviceIds": deviceIDs,
		"count":     len(rows),
	})
	return
}

// ListHistory returns the device's assignments ordered by start date.
func (s *HistoryService) ListHistory(ctx context.Context, deviceID string) ([]RoomAssignment, error) {
	if s == nil {
		return nil, fmt.Errorf("HistoryService is nil")
	}
	if s.reader == nil {
		return nil, fmt.Errorf("history reader not configured")
	}
	if _, err := s.reader.GetDevice(ctx, deviceID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, notFound("device %s", deviceID)
		}
		return nil, err
	}

	rows, err := s.reader.ListHistory(ctx, deviceID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	history := make([]RoomAssignment, 0, len(rows))
	for _, row := range rows {
		history = append(history, fromPersistenceAssignment(row))
	}
	return history, nil
}

// CurrentRoom returns the device's open assignment. ok is false when the
// device is not placed in any room.
func (s *HistoryService) CurrentRoom(ctx context.Context, deviceID string) (assignment RoomAssignment, ok bool, err error) {
	history, err := s.ListHistory(ctx, deviceID)
	if err != nil {
		return RoomAssignment{}, false, err
	}
	open := make([]occupancy.Assignment, 0, 1)
	byID := make(map[string]RoomAssignment, 1)
	for _, entry := range history {
		if !entry.IsOpen() {
			continue
		}
		open = append(open, occupancy.Assignment{
			ID:       entry.ID,
			DeviceID: entry.DeviceID,
			RoomID:   entry.RoomID,
			Interval: occupancy.Interval{From: entry.FromDate},
		})
		byID[entry.ID] = entry
	}
	current, ok := occupancy.Current(open)
	if !ok {
		return RoomAssignment{}, false, nil
	}
	return byID[current.ID], true, nil
}

// moveInTx closes the open assignments of deviceID on moveDate and opens a new
// one in roomID.
func (s *HistoryService) moveInTx(ctx context.Context, tx persistence.Tx, deviceID, roomID string, moveDate occupancy.Date, notes *string) (persistence.RoomAssignment, error) {
	open, err := tx.FindOpenIntervals(ctx, deviceID)
	if err != nil {
		return persistence.RoomAssignment{}, mapStoreError(err)
	}
	for _, current := range open {
		if current.FromDate.After(moveDate) {
			return persistence.RoomAssignment{}, fieldError("moveDate", fmt.Sprintf("must not be before the current assignment start %s", current.FromDate))
		}
	}
	for _, current := range open {
		if err := tx.CloseInterval(ctx, current.ID, moveDate); err != nil {
			return persistence.RoomAssignment{}, mapStoreError(err)
		}
	}

	row := persistence.RoomAssignment{
		ID:        s.idGenerator(),
		DeviceID:  deviceID,
		RoomID:    roomID,
		FromDate:  moveDate,
		Notes:     normalizeNotes(notes),
		CreatedAt: s.now().UTC(),
	}
	others, err := tx.FindOverlapping(ctx, deviceID, row.Interval(), "")
	if err != nil {
		return persistence.RoomAssignment{}, mapStoreError(err)
	}
	if conflicts := occupancy.DetectConflicts(toAssignments(others), row.Assignment()); len(conflicts) > 0 {
		return persistence.RoomAssignment{}, conflictWith(conflicts)
	}
	if err := tx.InsertInterval(ctx, row); err != nil {
		return persistence.RoomAssignment{}, mapStoreError(err)
	}
	return row, nil
}

// insertInTx trims assignments that start earlier and run into the new
// interval, then inserts it. Later assignments that still overlap abort the
// insert.
func (s *HistoryService) insertInTx(ctx context.Context, tx persistence.Tx, deviceID string, input IntervalInput) (persistence.RoomAssignment, error) {
	row := persistence.RoomAssignment{
		ID:        s.idGenerator(),
		DeviceID:  deviceID,
		RoomID:    input.RoomID,
		FromDate:  input.FromDate,
		ToDate:    input.ToDate,
		Notes:     normalizeNotes(input.Notes),
		CreatedAt: s.now().UTC(),
	}

	others, err := tx.FindOverlapping(ctx, deviceID, row.Interval(), "")
	if err != nil {
		return persistence.RoomAssignment{}, mapStoreError(err)
	}
	trims, conflicts := occupancy.PlanInsert(toAssignments(others), row.Interval())
	if len(conflicts) > 0 {
		return persistence.RoomAssignment{}, conflictWith(conflicts)
	}
	for _, trim := range trims {
		if err := tx.CloseInterval(ctx, trim.AssignmentID, trim.NewTo); err != nil {
			return persistence.RoomAssignment{}, mapStoreError(err)
		}
	}
	if err := tx.InsertInterval(ctx, row); err != nil {
		return persistence.RoomAssignment{}, mapStoreError(err)
	}
	return row, nil
}

// loadEntry fetches a history entry and, when deviceID is given, checks that
// it belongs to that device.
func (s *HistoryService) loadEntry(ctx context.Context, tx persistence.Tx, deviceID, historyID string) (persistence.RoomAssignment, error) {
	existing, err := tx.GetInterval(ctx, historyID)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.RoomAssignment{}, notFound("history entry %s", historyID)
	}
	if err != nil {
		return persistence.RoomAssignment{}, mapStoreError(err)
	}
	if deviceID != "" && existing.DeviceID != deviceID {
		return persistence.RoomAssignment{}, notFound("history entry %s for device %s", historyID, deviceID)
	}
	return existing, nil
}

func applyPatch(existing persistence.RoomAssignment, patch IntervalPatch) (persistence.RoomAssignment, *ValidationError) {
	proposed := existing
	vErr := &ValidationError{}

	if patch.RoomID != nil {
		roomID := strings.TrimSpace(*patch.RoomID)
		if roomID == "" {
			vErr.add("roomId", "must not be empty")
		}
		proposed.RoomID = roomID
	}
	if patch.FromDate != nil {
		if patch.FromDate.IsZero() {
			vErr.add("fromDate", "must be a valid date (YYYY-MM-DD)")
		}
		proposed.FromDate = *patch.FromDate
	}
	if patch.ToDateSet {
		proposed.ToDate = patch.ToDate
		if patch.ToDate != nil && patch.ToDate.IsZero() {
			vErr.add("toDate", "must be a valid date (YYYY-MM-DD)")
		}
	}
	if patch.NotesSet {
		proposed.Notes = normalizeNotes(patch.Notes)
	}

	if !vErr.HasErrors() && proposed.ToDate != nil && proposed.ToDate.Before(proposed.FromDate) {
		vErr.add("toDate", "must not be before fromDate")
	}
	return proposed, vErr
}

// diffAssignments lists changed fields as {old, new} pairs. Notes are masked.
func diffAssignments(before, after persistence.RoomAssignment) map[string]any {
	changes := map[string]any{}
	if before.RoomID != after.RoomID {
		changes["roomId"] = change(before.RoomID, after.RoomID)
	}
	if !before.FromDate.Equal(after.FromDate) {
		changes["fromDate"] = change(before.FromDate.String(), after.FromDate.String())
	}
	if !sameDate(before.ToDate, after.ToDate) {
		changes["toDate"] = change(dateValue(before.ToDate), dateValue(after.ToDate))
	}
	if !sameString(before.Notes, after.Notes) {
		changes["notes"] = change(maskNote(before.Notes), maskNote(after.Notes))
	}
	return changes
}

func change(old, updated any) map[string]any {
	return map[string]any{"old": old, "new": updated}
}

func validateIntervalInput(vErr *ValidationError, input IntervalInput) {
	requireField(vErr, "roomId", input.RoomID)
	requireDate(vErr, "fromDate", input.FromDate)
	if input.ToDate != nil {
		if input.ToDate.IsZero() {
			vErr.add("toDate", "must be a valid date (YYYY-MM-DD)")
		} else if !input.FromDate.IsZero() && input.ToDate.Before(input.FromDate) {
			vErr.add("toDate", "must not be before fromDate")
		}
	}
}

func requirePrincipal(principal Principal) error {
	if strings.TrimSpace(principal.Username) == "" {
		return ErrUnauthorized
	}
	return nil
}

func requireField(vErr *ValidationError, field, value string) {
	if strings.TrimSpace(value) == "" {
		vErr.add(field, "is required")
	}
}

func requireDate(vErr *ValidationError, field string, value occupancy.Date) {
	if value.IsZero() {
		vErr.add(field, "must be a valid date (YYYY-MM-DD)")
	}
}

func ensureDevice(ctx context.Context, tx persistence.Tx, deviceID string) error {
	exists, err := tx.DeviceExists(ctx, deviceID)
	if err != nil {
		return mapStoreError(err)
	}
	if !exists {
		return notFound("device %s", deviceID)
	}
	return nil
}

func ensureRoom(ctx context.Context, tx persistence.Tx, field, roomID string) error {
	exists, err := tx.RoomExists(ctx, roomID)
	if err != nil {
		return mapStoreError(err)
	}
	if !exists {
		return fieldError(field, "room does not exist")
	}
	return nil
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func toAssignments(rows []persistence.RoomAssignment) []occupancy.Assignment {
	out := make([]occupancy.Assignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Assignment())
	}
	return out
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func dateValue(d *occupancy.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func maskNote(notes *string) any {
	if notes == nil {
		return nil
	}
	return "[note]"
}

func sameDate(a, b *occupancy.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
