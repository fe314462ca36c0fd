package vera

import (
	"fmt"
	"sort"
	"sync"
)

// DeviceRef is a device as known to the directory.
type DeviceRef struct {
	ID         ID     `json:"id"`
	Name       string `json:"name"`
	CategoryID ID     `json:"categoryId"`
}

// RoomEntry is one room of the directory with the devices it holds.
type RoomEntry struct {
	ID      ID          `json:"id"`
	Name    string      `json:"name"`
	Devices []DeviceRef `json:"devices"`
}

// Location is the result of resolving a device id.
type Location struct {
	RoomID   ID
	RoomName string
	Device   DeviceRef
}

// Directory is the room/device topology cache built from a snapshot.
//
// A rebuild replaces the whole topology at once; readers never observe a
// partially built directory. Safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	rooms   map[ID]*RoomEntry
	devices map[ID]Location
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		rooms:   make(map[ID]*RoomEntry),
		devices: make(map[ID]Location),
	}
}

// Build replaces the directory contents with the topology of doc.
//
// Devices whose room is not listed are left out, as are rooms and devices
// that failed to decode (Err set). The previous contents are
// kept when doc is nil or lacks its rooms or devices collection.
//
// Returns:
//   - int: Number of devices placed in a room
//   - error: ErrInvalidDocument if the document is unusable
func (d *Directory) Build(doc *SnapshotDocument) (int, error) {
	if doc == nil {
		return 0, fmt.Errorf("%w: empty snapshot", ErrInvalidDocument)
	}
	if doc.Rooms == nil {
		return 0, fmt.Errorf("%w: snapshot has no rooms collection", ErrInvalidDocument)
	}
	if doc.Devices == nil {
		return 0, fmt.Errorf("%w: snapshot has no devices collection", ErrInvalidDocument)
	}

	rooms := make(map[ID]*RoomEntry, len(doc.Rooms))
	for _, r := range doc.Rooms {
		if r.Err != nil {
			continue
		}
		rooms[r.ID] = &RoomEntry{ID: r.ID, Name: r.Name}
	}

	devices := make(map[ID]Location, len(doc.Devices))
	for _, dev := range doc.Devices {
		if dev.Err != nil {
			continue
		}
		room, ok := rooms[dev.Room]
		if !ok {
			continue
		}
		ref := DeviceRef{ID: dev.ID, Name: dev.Name, CategoryID: dev.Category}
		room.Devices = append(room.Devices, ref)
		if _, dup := devices[dev.ID]; !dup {
			devices[dev.ID] = Location{RoomID: room.ID, RoomName: room.Name, Device: ref}
		}
	}

	d.mu.Lock()
	d.rooms = rooms
	d.devices = devices
	d.mu.Unlock()

	return len(devices), nil
}

// Lookup resolves a device id to its room and directory entry.
func (d *Directory) Lookup(id ID) (Location, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	loc, ok := d.devices[id]
	return loc, ok
}

// Contains reports whether the device id is in the directory.
func (d *Directory) Contains(id ID) bool {
	_, ok := d.Lookup(id)
	return ok
}

// Size returns the number of rooms and devices.
func (d *Directory) Size() (rooms, devices int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms), len(d.devices)
}

// Rooms returns a copy of the directory ordered by room id.
func (d *Directory) Rooms() []RoomEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]RoomEntry, 0, len(d.rooms))
	for _, r := range d.rooms {
		entry := RoomEntry{ID: r.ID, Name: r.Name, Devices: make([]DeviceRef, len(r.Devices))}
		copy(entry.Devices, r.Devices)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
