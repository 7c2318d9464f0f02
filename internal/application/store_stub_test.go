package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/BerniPi/BGBB-IKT/internal/audit"
	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

// memStore is an in-memory unit of work. A failed transaction restores the
// state captured when it began.
type memStore struct {
	devices map[string]persistence.Device
	rooms   map[string]bool
	rows    []persistence.RoomAssignment

	insertErr error
	listErr   error
	txCount   int
}

func newMemStore() *memStore {
	return &memStore{
		devices: map[string]persistence.Device{},
		rooms:   map[string]bool{},
	}
}

func (m *memStore) addRoom(id string) *memStore {
	m.rooms[id] = true
	return m
}

func (m *memStore) addDevice(id string) *memStore {
	m.devices[id] = persistence.Device{ID: id, Status: persistence.DeviceStatusActive}
	return m
}

func (m *memStore) addRow(id, deviceID, roomID, from string, to *string) *memStore {
	row := persistence.RoomAssignment{ID: id, DeviceID: deviceID, RoomID: roomID, FromDate: occupancy.MustParseDate(from)}
	if to != nil {
		row.ToDate = occupancy.DatePtr(occupancy.MustParseDate(*to))
	}
	m.rows = append(m.rows, row)
	return m
}

func (m *memStore) row(t *testing.T, id string) persistence.RoomAssignment {
	t.Helper()
	for _, r := range m.rows {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("row %s not found", id)
	return persistence.RoomAssignment{}
}

func (m *memStore) deviceRows(deviceID string) []persistence.RoomAssignment {
	var out []persistence.RoomAssignment
	for _, r := range m.rows {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FromDate.Before(out[j].FromDate) })
	return out
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx persistence.Tx) error) error {
	m.txCount++
	devices := make(map[string]persistence.Device, len(m.devices))
	for k, v := range m.devices {
		devices[k] = v
	}
	rows := append([]persistence.RoomAssignment(nil), m.rows...)

	if err := fn(&memTx{m: m}); err != nil {
		m.devices = devices
		m.rows = rows
		return err
	}
	return nil
}

func (m *memStore) ListHistory(ctx context.Context, deviceID string) ([]persistence.RoomAssignment, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.deviceRows(deviceID), nil
}

func (m *memStore) GetDevice(ctx context.Context, deviceID string) (persistence.Device, error) {
	return (&memTx{m: m}).GetDevice(ctx, deviceID)
}

func (m *memStore) ListDevices(ctx context.Context, filter persistence.DeviceFilter) ([]persistence.Device, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	tx := &memTx{m: m}
	var out []persistence.Device
	for id := range m.devices {
		device, _ := tx.GetDevice(ctx, id)
		if filter.Status != "" && device.Status != filter.Status {
			continue
		}
		if filter.RoomID != "" && (device.CurrentRoomID == nil || *device.CurrentRoomID != filter.RoomID) {
			continue
		}
		out = append(out, device)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memTx struct {
	m *memStore
}

func (t *memTx) DeviceExists(ctx context.Context, deviceID string) (bool, error) {
	_, ok := t.m.devices[deviceID]
	return ok, nil
}

func (t *memTx) RoomExists(ctx context.Context, roomID string) (bool, error) {
	return t.m.rooms[roomID], nil
}

func (t *memTx) GetInterval(ctx context.Context, id string) (persistence.RoomAssignment, error) {
	for _, r := range t.m.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return persistence.RoomAssignment{}, persistence.ErrNotFound
}

func (t *memTx) FindOpenIntervals(ctx context.Context, deviceID string) ([]persistence.RoomAssignment, error) {
	var out []persistence.RoomAssignment
	for _, r := range t.m.rows {
		if r.DeviceID == deviceID && r.ToDate == nil {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FromDate.After(out[j].FromDate) })
	return out, nil
}

func (t *memTx) FindMostRecentInterval(ctx context.Context, deviceID string) (persistence.RoomAssignment, error) {
	var assignments []occupancy.Assignment
	for _, r := range t.m.rows {
		if r.DeviceID == deviceID {
			assignments = append(assignments, r.Assignment())
		}
	}
	current, ok := occupancy.Current(assignments)
	if !ok {
		return persistence.RoomAssignment{}, persistence.ErrNotFound
	}
	return t.GetInterval(ctx, current.ID)
}

func (t *memTx) FindOverlapping(ctx context.Context, deviceID string, interval occupancy.Interval, excludeID string) ([]persistence.RoomAssignment, error) {
	var out []persistence.RoomAssignment
	for _, r := range t.m.rows {
		if r.DeviceID == deviceID && r.ID != excludeID && r.Interval().Overlaps(interval) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) CloseInterval(ctx context.Context, id string, to occupancy.Date) error {
	for i, r := range t.m.rows {
		if r.ID != id {
			continue
		}
		if to.Before(r.FromDate) {
			return persistence.ErrConstraintViolation
		}
		t.m.rows[i].ToDate = occupancy.DatePtr(to)
		return nil
	}
	return persistence.ErrNotFound
}

func (t *memTx) InsertInterval(ctx context.Context, assignment persistence.RoomAssignment) error {
	if t.m.insertErr != nil {
		return t.m.insertErr
	}
	if err := t.checkOpen(assignment); err != nil {
		return err
	}
	t.m.rows = append(t.m.rows, assignment)
	return nil
}

func (t *memTx) UpdateInterval(ctx context.Context, assignment persistence.RoomAssignment) error {
	if err := t.checkOpen(assignment); err != nil {
		return err
	}
	for i, r := range t.m.rows {
		if r.ID == assignment.ID {
			t.m.rows[i] = assignment
			return nil
		}
	}
	return persistence.ErrNotFound
}

func (t *memTx) DeleteInterval(ctx context.Context, id string) error {
	for i, r := range t.m.rows {
		if r.ID == id {
			t.m.rows = append(t.m.rows[:i:i], t.m.rows[i+1:]...)
			return nil
		}
	}
	return persistence.ErrNotFound
}

// checkOpen mirrors the partial unique index on open rows.
func (t *memTx) checkOpen(assignment persistence.RoomAssignment) error {
	if assignment.ToDate != nil {
		return nil
	}
	for _, r := range t.m.rows {
		if r.ID != assignment.ID && r.DeviceID == assignment.DeviceID && r.ToDate == nil {
			return fmt.Errorf("%w: open interval exists", persistence.ErrDuplicate)
		}
	}
	return nil
}

func (t *memTx) GetDevice(ctx context.Context, deviceID string) (persistence.Device, error) {
	device, ok := t.m.devices[deviceID]
	if !ok {
		return persistence.Device{}, persistence.ErrNotFound
	}
	open, _ := t.FindOpenIntervals(ctx, deviceID)
	if len(open) > 0 {
		room := open[0].RoomID
		device.CurrentRoomID = &room
	}
	return device, nil
}

func (t *memTx) InsertDevice(ctx context.Context, device persistence.Device) error {
	for _, existing := range t.m.devices {
		if existing.ID == device.ID {
			return persistence.ErrDuplicate
		}
		if device.SerialNumber != nil && existing.SerialNumber != nil && *device.SerialNumber == *existing.SerialNumber {
			return persistence.ErrDuplicate
		}
	}
	t.m.devices[device.ID] = device
	return nil
}

func (t *memTx) UpdateDevice(ctx context.Context, device persistence.Device) error {
	if _, ok := t.m.devices[device.ID]; !ok {
		return persistence.ErrNotFound
	}
	for id, existing := range t.m.devices {
		if id != device.ID && device.SerialNumber != nil && existing.SerialNumber != nil && *device.SerialNumber == *existing.SerialNumber {
			return persistence.ErrDuplicate
		}
	}
	device.CurrentRoomID = nil
	t.m.devices[device.ID] = device
	return nil
}

func (t *memTx) DeleteDevice(ctx context.Context, deviceID string) (int64, error) {
	if _, ok := t.m.devices[deviceID]; !ok {
		return 0, persistence.ErrNotFound
	}
	kept := t.m.rows[:0:0]
	for _, r := range t.m.rows {
		if r.DeviceID != deviceID {
			kept = append(kept, r)
		}
	}
	removed := int64(len(t.m.rows) - len(kept))
	t.m.rows = kept
	delete(t.m.devices, deviceID)
	return removed, nil
}

func (t *memTx) SetLastInspected(ctx context.Context, deviceID string, date occupancy.Date) error {
	device, ok := t.m.devices[deviceID]
	if !ok {
		return persistence.ErrNotFound
	}
	device.LastInspected = occupancy.DatePtr(date)
	t.m.devices[deviceID] = device
	return nil
}

func (t *memTx) MarkInspectedInRoom(ctx context.Context, roomID string, date occupancy.Date) (int64, error) {
	marked := map[string]bool{}
	for _, r := range t.m.rows {
		if r.RoomID == roomID && r.Interval().Contains(date) {
			marked[r.DeviceID] = true
		}
	}
	for id := range marked {
		if err := t.SetLastInspected(ctx, id, date); err != nil {
			return 0, err
		}
	}
	return int64(len(marked)), nil
}

type recorderStub struct {
	mu      sync.Mutex
	records []audit.Record
}

func (r *recorderStub) Record(ctx context.Context, rec audit.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorderStub) last(t *testing.T) audit.Record {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		t.Fatalf("expected an audit record")
	}
	return r.records[len(r.records)-1]
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func strPtr(s string) *string { return &s }

func date(s string) occupancy.Date { return occupancy.MustParseDate(s) }

// assertHistoryInvariants checks that no two rows of a device overlap beyond a
// handover day and that at most one row is open.
func assertHistoryInvariants(t *testing.T, m *memStore, deviceID string) {
	t.Helper()
	rows := m.deviceRows(deviceID)
	open := 0
	for i, a := range rows {
		if a.ToDate == nil {
			open++
		}
		if a.ToDate != nil && a.ToDate.Before(a.FromDate) {
			t.Fatalf("row %s ends before it starts", a.ID)
		}
		for _, b := range rows[i+1:] {
			if a.Interval().OverlapsBeyondHandover(b.Interval()) {
				t.Fatalf("rows %s and %s overlap", a.ID, b.ID)
			}
		}
	}
	if open > 1 {
		t.Fatalf("device %s has %d open rows", deviceID, open)
	}
}
