// Package snapshot turns the controller's full lu_sdata dump into a
// structured report of rooms, scenes and devices.
package snapshot

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/vera-bridge/internal/bridges/vera"
)

// dimmerCategory is the category whose devices report a level.
const dimmerCategory vera.ID = 2

// Report is the normalized snapshot.
type Report struct {
	Metadata Metadata `json:"metadata"`
	Rooms    []Room   `json:"rooms"`
	Scenes   []Scene  `json:"scenes"`
	Devices  []Device `json:"devices"`
	Summary  Summary  `json:"summary"`
}

// Metadata describes the controller and the moment of normalization.
// Controller fields are passed through as sent; absent ones become null.
type Metadata struct {
	Timestamp   string     `json:"timestamp"`
	VeraVersion vera.Value `json:"veraVersion"`
	Model       vera.Value `json:"model"`
	Serial      vera.Value `json:"serialNumber"`
	DataVersion vera.Value `json:"dataVersion"`
}

// Room is a room of the report.
type Room struct {
	ID      vera.ID    `json:"id"`
	Name    string     `json:"name"`
	Section vera.Value `json:"section"`
}

// Scene is a scene of the report.
type Scene struct {
	ID      vera.ID    `json:"id"`
	Name    string     `json:"name"`
	Room    string     `json:"room"`
	RoomID  vera.ID    `json:"roomId"`
	Active  bool       `json:"active"`
	State   vera.Value `json:"state"`
	Comment string     `json:"comment"`
}

// Category names a device category.
type Category struct {
	ID   vera.ID `json:"id"`
	Name string  `json:"name"`
}

// Device is a device of the report. Readings are present only when the
// controller sent a finite number for them.
type Device struct {
	ID          vera.ID    `json:"id"`
	AltID       vera.Value `json:"altId"`
	Name        string     `json:"name"`
	Category    Category   `json:"category"`
	Subcategory vera.Value `json:"subcategory"`
	Room        string     `json:"room"`
	RoomID      vera.ID    `json:"roomId"`
	Status      vera.Value `json:"status"`
	State       vera.Value `json:"state"`
	Configured  bool       `json:"configured"`
	CommFailure bool       `json:"commFailure"`
	Parent      vera.Value `json:"parent"`
	Comment     string     `json:"comment"`
	Temperature *float64   `json:"temperature,omitempty"`
	Humidity    *float64   `json:"humidity,omitempty"`
	Level       *float64   `json:"level,omitempty"`
}

// Summary holds counts derived from the report.
type Summary struct {
	TotalRooms    int `json:"totalRooms"`
	TotalScenes   int `json:"totalScenes"`
	TotalDevices  int `json:"totalDevices"`
	ActiveScenes  int `json:"activeScenes"`
	ActiveDevices int `json:"activeDevices"`
}

// Normalize builds a report from doc. Room and category names not found in
// the document become "Unknown (<id>)". now is recorded in UTC as the
// report timestamp.
func Normalize(doc *vera.SnapshotDocument, now time.Time) *Report {
	if doc == nil {
		doc = &vera.SnapshotDocument{}
	}
	doc = decodedEntries(doc)

	roomNames := make(map[vera.ID]string, len(doc.Rooms))
	for _, r := range doc.Rooms {
		if _, dup := roomNames[r.ID]; !dup {
			roomNames[r.ID] = r.Name
		}
	}
	categoryNames := make(map[vera.ID]string, len(doc.Categories))
	for _, c := range doc.Categories {
		if _, dup := categoryNames[c.ID]; !dup {
			categoryNames[c.ID] = c.Name
		}
	}

	report := &Report{
		Metadata: Metadata{
			Timestamp:   now.UTC().Format(time.RFC3339),
			VeraVersion: doc.Version,
			Model:       doc.Model,
			Serial:      doc.SerialNumber,
			DataVersion: doc.DataVersion,
		},
		Rooms:   make([]Room, 0, len(doc.Rooms)),
		Scenes:  make([]Scene, 0, len(doc.Scenes)),
		Devices: make([]Device, 0, len(doc.Devices)),
	}

	for _, r := range doc.Rooms {
		report.Rooms = append(report.Rooms, Room{ID: r.ID, Name: r.Name, Section: r.Section})
	}

	for _, s := range doc.Scenes {
		scene := Scene{
			ID:      s.ID,
			Name:    s.Name,
			Room:    lookupName(roomNames, s.Room),
			RoomID:  s.Room,
			Active:  isOne(s.Active),
			State:   s.State,
			Comment: s.Comment,
		}
		if scene.Active {
			report.Summary.ActiveScenes++
		}
		report.Scenes = append(report.Scenes, scene)
	}

	for _, d := range doc.Devices {
		dev := Device{
			ID:          d.ID,
			AltID:       d.AltID,
			Name:        d.Name,
			Category:    Category{ID: d.Category, Name: lookupName(categoryNames, d.Category)},
			Subcategory: d.Subcategory,
			Room:        lookupName(roomNames, d.Room),
			RoomID:      d.Room,
			Status:      d.Status,
			State:       d.State,
			Configured:  d.Configured.Equals("1"),
			CommFailure: d.CommFailure.Equals("1"),
			Parent:      d.Parent,
			Comment:     d.Comment,
			Temperature: finite(d.Temperature),
			Humidity:    finite(d.Humidity),
		}
		if d.Category == dimmerCategory {
			dev.Level = finite(d.Level)
		}
		if d.Status.Equals("1") {
			report.Summary.ActiveDevices++
		}
		report.Devices = append(report.Devices, dev)
	}

	report.Summary.TotalRooms = len(report.Rooms)
	report.Summary.TotalScenes = len(report.Scenes)
	report.Summary.TotalDevices = len(report.Devices)
	return report
}

func lookupName(names map[vera.ID]string, id vera.ID) string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%d)", id)
}

// finite returns the value as a number when it is a finite number or
// numeric string; nil otherwise.
func finite(v vera.Value) *float64 {
	var text string
	switch x := v.Raw().(type) {
	case string:
		text = strings.TrimSpace(x)
	case fmt.Stringer:
		text = x.String()
	default:
		return nil
	}
	if text == "" {
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// isOne reports whether a scene flag equals 1.
func isOne(v vera.Value) bool {
	switch x := v.Raw().(type) {
	case bool:
		return x
	case fmt.Stringer:
		f, err := strconv.ParseFloat(x.String(), 64)
		return err == nil && f == 1
	}
	return false
}

// decodedEntries returns a shallow copy of doc without the entries that
// failed to decode.
func decodedEntries(doc *vera.SnapshotDocument) *vera.SnapshotDocument {
	out := *doc
	out.Rooms = keep(doc.Rooms, func(r vera.Room) error { return r.Err })
	out.Categories = keep(doc.Categories, func(c vera.Category) error { return c.Err })
	out.Scenes = keep(doc.Scenes, func(s vera.Scene) error { return s.Err })
	out.Devices = keep(doc.Devices, func(d vera.Device) error { return d.Err })
	return &out
}

func keep[T any](entries []T, errOf func(T) error) []T {
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		if errOf(e) == nil {
			out = append(out, e)
		}
	}
	return out
}
