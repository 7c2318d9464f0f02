package application

import (
	"context"
	"errors"
	"testing"

	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

func newDeviceFixture() (*memStore, *recorderStub, *DeviceService) {
	store := newMemStore().addRoom("A").addRoom("B")
	recorder := &recorderStub{}
	svc := NewDeviceService(store, store, recorder, sequentialIDs("id"), fixedNow)
	return store, recorder, svc
}

func TestDeviceService_CreateDevice(t *testing.T) {
	t.Run("opens the first assignment in the initial room", func(t *testing.T) {
		store, recorder, svc := newDeviceFixture()

		device, err := svc.CreateDevice(context.Background(), CreateDeviceParams{
			Principal:     admin,
			Input:         DeviceInput{Hostname: strPtr("pc-101"), SerialNumber: strPtr("SN-1")},
			InitialRoomID: "A",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if device.Status != string(persistence.DeviceStatusActive) {
			t.Fatalf("expected default status active, got %q", device.Status)
		}
		if device.CurrentRoomID == nil || *device.CurrentRoomID != "A" {
			t.Fatalf("expected current room A, got %v", device.CurrentRoomID)
		}

		rows := store.deviceRows(device.ID)
		if len(rows) != 1 || !rows[0].FromDate.Equal(date("2025-06-15")) || rows[0].ToDate != nil {
			t.Fatalf("expected one open row starting today, got %+v", rows)
		}
		rec := recorder.last(t)
		if rec.Action != persistence.ActionCreate || rec.Details["roomId"] != "A" {
			t.Fatalf("unexpected audit record: %+v", rec)
		}
	})

	t.Run("without a room the device has no history", func(t *testing.T) {
		store, _, svc := newDeviceFixture()

		device, err := svc.CreateDevice(context.Background(), CreateDeviceParams{Principal: admin, Input: DeviceInput{Status: "Storage"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if device.Status != "storage" || device.CurrentRoomID != nil {
			t.Fatalf("unexpected device: %+v", device)
		}
		if len(store.deviceRows(device.ID)) != 0 {
			t.Fatalf("expected no history")
		}
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		_, _, svc := newDeviceFixture()

		_, err := svc.CreateDevice(context.Background(), CreateDeviceParams{Principal: admin, Input: DeviceInput{Status: "lost"}})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["status"] == "" {
			t.Fatalf("expected status validation error, got %v", err)
		}
	})

	t.Run("unknown room leaves nothing behind", func(t *testing.T) {
		store, _, svc := newDeviceFixture()

		_, err := svc.CreateDevice(context.Background(), CreateDeviceParams{Principal: admin, InitialRoomID: "Z"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["roomId"] == "" {
			t.Fatalf("expected roomId validation error, got %v", err)
		}
		if len(store.devices) != 0 {
			t.Fatalf("expected no device to be stored")
		}
	})

	t.Run("duplicate serial is a conflict", func(t *testing.T) {
		_, _, svc := newDeviceFixture()
		params := CreateDeviceParams{Principal: admin, Input: DeviceInput{SerialNumber: strPtr("SN-1")}}

		if _, err := svc.CreateDevice(context.Background(), params); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.CreateDevice(context.Background(), params); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})
}

func TestDeviceService_GetDevice(t *testing.T) {
	store, _, svc := newDeviceFixture()
	store.addDevice("D").addRow("h-1", "D", "B", "2025-01-01", nil)

	device, err := svc.GetDevice(context.Background(), "D")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if device.CurrentRoomID == nil || *device.CurrentRoomID != "B" {
		t.Fatalf("expected current room B, got %v", device.CurrentRoomID)
	}

	if _, err := svc.GetDevice(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeviceService_MarkInspected(t *testing.T) {
	t.Run("defaults to today and records the change", func(t *testing.T) {
		store, recorder, svc := newDeviceFixture()
		store.addDevice("D")

		device, err := svc.MarkInspected(context.Background(), MarkInspectedParams{Principal: admin, DeviceID: "D"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if device.LastInspected == nil || !device.LastInspected.Equal(date("2025-06-15")) {
			t.Fatalf("expected inspection today, got %v", device.LastInspected)
		}
		inspected := recorder.last(t).Details["lastInspected"].(map[string]any)
		if inspected["old"] != nil || inspected["new"] != "2025-06-15" {
			t.Fatalf("unexpected audit details: %+v", inspected)
		}
	})

	t.Run("same date records nothing", func(t *testing.T) {
		store, recorder, svc := newDeviceFixture()
		store.addDevice("D")
		d := store.devices["D"]
		d.LastInspected = occupancy.DatePtr(date("2025-06-01"))
		store.devices["D"] = d

		if _, err := svc.MarkInspected(context.Background(), MarkInspectedParams{Principal: admin, DeviceID: "D", Date: date("2025-06-01")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(recorder.records) != 0 {
			t.Fatalf("expected no audit record")
		}
	})

	t.Run("unknown device is not found", func(t *testing.T) {
		_, _, svc := newDeviceFixture()

		if _, err := svc.MarkInspected(context.Background(), MarkInspectedParams{Principal: admin, DeviceID: "ghost"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDeviceService_BulkMarkInspectedInRoom(t *testing.T) {
	store, recorder, svc := newDeviceFixture()
	to := "2025-05-31"
	store.addDevice("D").addDevice("E").addDevice("F")
	store.addRow("h-1", "D", "A", "2025-01-01", nil)
	store.addRow("h-2", "E", "A", "2025-01-01", &to)
	store.addRow("h-3", "F", "B", "2025-01-01", nil)

	count, err := svc.BulkMarkInspectedInRoom(context.Background(), BulkMarkInspectedParams{Principal: admin, RoomID: "A", Date: date("2025-06-10")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one device in room A on that day, got %d", count)
	}
	if store.devices["D"].LastInspected == nil || store.devices["E"].LastInspected != nil {
		t.Fatalf("unexpected inspection state: %+v", store.devices)
	}
	if recorder.last(t).Action != persistence.ActionBulkUpdate {
		t.Fatalf("expected bulk audit record")
	}

	if _, err := svc.BulkMarkInspectedInRoom(context.Background(), BulkMarkInspectedParams{Principal: admin, RoomID: "Z"}); err == nil {
		t.Fatalf("expected unknown room to fail")
	}
}

func TestDeviceService_ListDevices(t *testing.T) {
	store, _, svc := newDeviceFixture()
	store.addDevice("d-1").addDevice("d-2").addDevice("d-3")
	store.addRow("h-1", "d-1", "A", "2025-01-01", nil)
	store.addRow("h-2", "d-2", "B", "2025-01-01", nil)
	stored := store.devices["d-3"]
	stored.Status = persistence.DeviceStatusStorage
	store.devices["d-3"] = stored

	inA, err := svc.ListDevices(context.Background(), DeviceQuery{RoomID: "A"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inA) != 1 || inA[0].ID != "d-1" {
		t.Fatalf("expected only d-1 in room A, got %+v", inA)
	}

	inStorage, err := svc.ListDevices(context.Background(), DeviceQuery{Status: " STORAGE "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inStorage) != 1 || inStorage[0].ID != "d-3" {
		t.Fatalf("expected only d-3 in storage, got %+v", inStorage)
	}

	var vErr *ValidationError
	if _, err := svc.ListDevices(context.Background(), DeviceQuery{Status: "lost"}); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestDeviceService_UpdateDevice(t *testing.T) {
	t.Run("records only changed fields", func(t *testing.T) {
		store, recorder, svc := newDeviceFixture()
		store.addDevice("d-1")
		stored := store.devices["d-1"]
		stored.Hostname = strPtr("pc-1")
		store.devices["d-1"] = stored

		device, err := svc.UpdateDevice(context.Background(), UpdateDeviceParams{
			Principal: admin,
			DeviceID:  "d-1",
			Patch: DevicePatch{
				HostnameSet: true,
				Hostname:    strPtr("pc-1"),
				Status:      "defective",
				NotesSet:    true,
				Notes:       strPtr("screen cracked"),
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if device.Status != "defective" || device.Notes == nil || *device.Notes != "screen cracked" {
			t.Fatalf("unexpected device: %+v", device)
		}

		rec := recorder.last(t)
		if rec.Action != persistence.ActionUpdate || rec.Details["action"] != "update-device" {
			t.Fatalf("unexpected audit record: %+v", rec)
		}
		if _, ok := rec.Details["hostname"]; ok {
			t.Fatalf("unchanged hostname should not be recorded: %+v", rec.Details)
		}
		status := rec.Details["status"].(map[string]any)
		if status["old"] != "active" || status["new"] != "defective" {
			t.Fatalf("unexpected status change: %+v", status)
		}
		if notes := rec.Details["notes"].(map[string]any); notes["new"] != "[note]" {
			t.Fatalf("expected masked notes, got %+v", notes)
		}
	})

	t.Run("clearing a field stores null", func(t *testing.T) {
		store, _, svc := newDeviceFixture()
		store.addDevice("d-1")
		stored := store.devices["d-1"]
		stored.SerialNumber = strPtr("SN-1")
		store.devices["d-1"] = stored

		if _, err := svc.UpdateDevice(context.Background(), UpdateDeviceParams{
			Principal: admin,
			DeviceID:  "d-1",
			Patch:     DevicePatch{SerialNumberSet: true, SerialNumber: strPtr("  ")},
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.devices["d-1"].SerialNumber != nil {
			t.Fatalf("expected serial number cleared, got %v", *store.devices["d-1"].SerialNumber)
		}
	})

	t.Run("no change writes and records nothing", func(t *testing.T) {
		store, recorder, svc := newDeviceFixture()
		store.addDevice("d-1")

		if _, err := svc.UpdateDevice(context.Background(), UpdateDeviceParams{Principal: admin, DeviceID: "d-1", Patch: DevicePatch{Status: "active"}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(recorder.records) != 0 {
			t.Fatalf("expected no audit record")
		}
	})

	t.Run("empty patch and unknown status are rejected", func(t *testing.T) {
		store, _, svc := newDeviceFixture()
		store.addDevice("d-1")

		var vErr *ValidationError
		_, err := svc.UpdateDevice(context.Background(), UpdateDeviceParams{Principal: admin, DeviceID: "d-1"})
		if !errors.As(err, &vErr) || vErr.FieldErrors["body"] == "" {
			t.Fatalf("expected body validation error, got %v", err)
		}
		_, err = svc.UpdateDevice(context.Background(), UpdateDeviceParams{Principal: admin, DeviceID: "d-1", Patch: DevicePatch{Status: "lost"}})
		if !errors.As(err, &vErr) || vErr.FieldErrors["status"] == "" {
			t.Fatalf("expected status validation error, got %v", err)
		}
	})

	t.Run("duplicate serial number conflicts", func(t *testing.T) {
		store, _, svc := newDeviceFixture()
		store.addDevice("d-1").addDevice("d-2")
		taken := store.devices["d-2"]
		taken.SerialNumber = strPtr("SN-2")
		store.devices["d-2"] = taken

		_, err := svc.UpdateDevice(context.Background(), UpdateDeviceParams{
			Principal: admin,
			DeviceID:  "d-1",
			Patch:     DevicePatch{SerialNumberSet: true, SerialNumber: strPtr("SN-2")},
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if store.devices["d-1"].SerialNumber != nil {
			t.Fatalf("expected d-1 unchanged")
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		_, _, svc := newDeviceFixture()
		_, err := svc.UpdateDevice(context.Background(), UpdateDeviceParams{Principal: admin, DeviceID: "ghost", Patch: DevicePatch{Status: "storage"}})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDeviceService_DeleteDevice(t *testing.T) {
	t.Run("removes the device with its history and records a snapshot", func(t *testing.T) {
		store, recorder, svc := newDeviceFixture()
		store.addDevice("d-1").addDevice("d-2")
		stored := store.devices["d-1"]
		stored.Hostname = strPtr("pc-1")
		store.devices["d-1"] = stored
		to := "2025-01-31"
		store.addRow("h-1", "d-1", "A", "2025-01-01", &to)
		store.addRow("h-2", "d-1", "B", "2025-02-01", nil)
		store.addRow("h-3", "d-2", "A", "2025-01-01", nil)

		if err := svc.DeleteDevice(context.Background(), DeleteDeviceParams{Principal: admin, DeviceID: "d-1"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := store.devices["d-1"]; ok {
			t.Fatalf("expected d-1 removed")
		}
		if len(store.deviceRows("d-1")) != 0 || len(store.deviceRows("d-2")) != 1 {
			t.Fatalf("expected only d-1 history removed, got %+v", store.rows)
		}

		rec := recorder.last(t)
		if rec.Action != persistence.ActionDelete || rec.EntityID != "d-1" {
			t.Fatalf("unexpected audit record: %+v", rec)
		}
		if rec.Details["hostname"] != "pc-1" || rec.Details["lastRoom"] != "B" || rec.Details["historyEntriesRemoved"] != int64(2) {
			t.Fatalf("unexpected snapshot: %+v", rec.Details)
		}
		if _, ok := rec.Details["serialNumber"]; ok {
			t.Fatalf("absent fields should be omitted: %+v", rec.Details)
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		_, recorder, svc := newDeviceFixture()
		err := svc.DeleteDevice(context.Background(), DeleteDeviceParams{Principal: admin, DeviceID: "ghost"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if len(recorder.records) != 0 {
			t.Fatalf("expected no audit record")
		}
	})
}

func TestLastRoomLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		device persistence.Device
		want   string
	}{
		{"number and name", persistence.Device{CurrentRoomID: strPtr("r"), CurrentRoomNumber: strPtr("101"), CurrentRoomName: strPtr("Lab")}, "101 (Lab)"},
		{"number only", persistence.Device{CurrentRoomID: strPtr("r"), CurrentRoomNumber: strPtr("101")}, "101"},
		{"id fallback", persistence.Device{CurrentRoomID: strPtr("r")}, "r"},
		{"no room", persistence.Device{}, ""},
	}
	for _, tt := range tests {
		if got := lastRoomLabel(tt.device); got != tt.want {
			t.Fatalf("%s: lastRoomLabel = %q, want %q", tt.name, got, tt.want)
		}
	}
}
