// Package http exposes the device room history over a JSON API.
//
// Every route below /api requires an `Authorization: Bearer <token>` header
// issued by internal/auth. Dates are exchanged as YYYY-MM-DD strings and a
// null `toDate` marks the interval a device currently occupies.
//
//   - POST /api/devices/{id}/move-to-room: body {"newRoomId","moveDate","notes"}.
//     Closes the open interval on moveDate and opens a new one on the same day.
//   - PUT /api/devices/{id}/correct-current-room: body {"newRoomId"}. Rewrites the
//     room of the most recent interval without touching dates.
//   - PUT /api/devices/{id}/end-current-room: body {"toDate"}.
//   - GET /api/devices/{id}/current-room: {"deviceId","assignment"}.
//   - GET, POST /api/devices/{id}/rooms-history: list or insert intervals. Inserts
//     trim an earlier interval that runs into the new one and reject any other
//     overlap with 409.
//   - PUT, DELETE /api/devices/{id}/rooms-history/{historyId}: edit or delete one
//     interval. Edit fields left out of the body keep their value; an explicit
//     null `toDate` reopens the interval.
//   - POST /api/devices/bulk-move, POST /api/devices/bulk-rooms-history: apply the
//     same move or insert to every device in "deviceIds" in one transaction.
//   - GET /api/devices?roomId=&status=&q=: devices with their current room.
//   - POST /api/devices, GET, PUT and DELETE /api/devices/{id}: device records.
//     Deleting a device removes its room history as well.
//   - PUT /api/devices/{id}/mark-inspected and POST /api/devices/bulk/mark-inspected:
//     inspections.
//   - GET /api/activity/log?limit=&entityType=&entityId=: audit trail.
//   - GET /healthz and GET /metrics are unauthenticated.
//
// Errors are returned as {"error_code","message","errors"} where `errors` maps
// request fields to messages for 422 responses.
package http
