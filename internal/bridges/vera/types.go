package vera

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is a controller object id. Controllers send ids as JSON numbers, but
// some firmware quotes them, so both forms are accepted.
type ID int

// UnmarshalJSON accepts 12 and "12".
func (id *ID) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*id = ID(n)
	return nil
}

// String returns the decimal form of the id.
func (id ID) String() string {
	return strconv.Itoa(int(id))
}

// Value is a loosely typed controller field. It keeps what the controller
// sent: a string, a json.Number, a bool, or nil for an explicit null.
// The zero Value is "absent".
type Value struct {
	raw     any
	present bool
}

// StringValue returns a Value holding s.
func StringValue(s string) Value { return Value{raw: s, present: true} }

// NumberValue returns a Value holding the numeric literal n, e.g. "1" or "0.5".
func NumberValue(n string) Value { return Value{raw: json.Number(n), present: true} }

// BoolValue returns a Value holding b.
func BoolValue(b bool) Value { return Value{raw: b, present: true} }

// NullValue returns a Value holding an explicit JSON null.
func NullValue() Value { return Value{present: true} }

// UnmarshalJSON keeps the raw JSON scalar. Numbers keep their literal text
// so "1" and "1.0" remain distinguishable.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	v.raw = raw
	v.present = true
	return nil
}

// MarshalJSON writes the value back as received; absent values become null.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw)
}

// Present reports whether the field appeared in the document.
func (v Value) Present() bool { return v.present }

// Raw returns the decoded value.
func (v Value) Raw() any { return v.raw }

// Equals reports whether v holds exactly the string s.
func (v Value) Equals(s string) bool {
	str, ok := v.raw.(string)
	return ok && str == s
}

// String returns a display form: strings verbatim, numbers as sent,
// booleans as "True"/"False" and null as "None". The raw-event dedup key
// and the Tripped rule depend on this form.
func (v Value) String() string {
	switch x := v.raw.(type) {
	case nil:
		return "None"
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "True"
		}
		return "False"
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

// Snapshot entries (rooms, categories, devices, scenes) never fail the whole
// document. An entry that cannot be decoded keeps its decode error in Err
// and is skipped by the directory and the report.

// Room is a room entry of the snapshot document.
type Room struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Section Value  `json:"section"`
	Err     error  `json:"-"`
}

// UnmarshalJSON decodes a room, recording rather than returning errors.
func (r *Room) UnmarshalJSON(data []byte) error {
	type plain Room
	var p plain
	err := json.Unmarshal(data, &p)
	*r = Room(p)
	r.Err = err
	return nil
}

// Category is a device category entry of the snapshot document.
type Category struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Err  error  `json:"-"`
}

// UnmarshalJSON decodes a category, recording rather than returning errors.
func (c *Category) UnmarshalJSON(data []byte) error {
	type plain Category
	var p plain
	err := json.Unmarshal(data, &p)
	*c = Category(p)
	c.Err = err
	return nil
}

// Device is a device entry of the snapshot document.
type Device struct {
	ID          ID     `json:"id"`
	AltID       Value  `json:"altid"`
	Name        string `json:"name"`
	Category    ID     `json:"category"`
	Subcategory Value  `json:"subcategory"`
	Room        ID     `json:"room"`
	Parent      Value  `json:"parent"`
	Status      Value  `json:"status"`
	State       Value  `json:"state"`
	Configured  Value  `json:"configured"`
	CommFailure Value  `json:"commFailure"`
	Comment     string `json:"comment"`
	Temperature Value  `json:"temperature"`
	Humidity    Value  `json:"humidity"`
	Level       Value  `json:"level"`
	Err         error  `json:"-"`
}

// UnmarshalJSON decodes a device, recording rather than returning errors.
// A device with a malformed id, room or category has Err set.
func (d *Device) UnmarshalJSON(data []byte) error {
	type plain Device
	var p plain
	err := json.Unmarshal(data, &p)
	*d = Device(p)
	d.Err = err
	return nil
}

// Scene is a scene entry of the snapshot document.
type Scene struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Room    ID     `json:"room"`
	Active  Value  `json:"active"`
	State   Value  `json:"state"`
	Comment string `json:"comment"`
	Err     error  `json:"-"`
}

// UnmarshalJSON decodes a scene, recording rather than returning errors.
func (s *Scene) UnmarshalJSON(data []byte) error {
	type plain Scene
	var p plain
	err := json.Unmarshal(data, &p)
	*s = Scene(p)
	s.Err = err
	return nil
}

// SnapshotDocument is the full lu_sdata dump: topology, scenes and
// controller metadata. A nil Rooms or Devices slice means the collection
// was missing from the response.
type SnapshotDocument struct {
	Rooms        []Room     `json:"rooms"`
	Devices      []Device   `json:"devices"`
	Scenes       []Scene    `json:"scenes"`
	Categories   []Category `json:"categories"`
	Version      Value      `json:"version"`
	Model        Value      `json:"model"`
	SerialNumber Value      `json:"serial_number"`
	DataVersion  Value      `json:"dataversion"`
}

// StatusDocument is the incremental status report.
type StatusDocument struct {
	Devices []StatusDevice `json:"devices"`
}

// StatusDevice is one device of a status report.
//
// A device entry that cannot be decoded does not fail the document; its
// decode error is kept in Err so the remaining devices are still processed.
type StatusDevice struct {
	ID     ID              `json:"id"`
	States []StateVariable `json:"states"`
	Err    error           `json:"-"`
}

// UnmarshalJSON decodes a device, recording rather than returning errors.
func (d *StatusDevice) UnmarshalJSON(data []byte) error {
	type plain StatusDevice
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*d = StatusDevice{ID: p.ID, Err: err}
		return nil
	}
	*d = StatusDevice(p)
	return nil
}

// StateVariable is one reported state variable. Entries without a variable
// name or value are skipped by the detector.
type StateVariable struct {
	Variable string `json:"variable"`
	Value    Value  `json:"value"`
}
