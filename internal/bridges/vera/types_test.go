package vera

import (
	"encoding/json"
	"testing"
)

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{`12`, 12, false},
		{`"12"`, 12, false},
		{`" 7 "`, 7, false},
		{`"abc"`, 0, true},
		{`1.5`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tt.in), &id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && id != tt.want {
				t.Errorf("Unmarshal(%s) = %d, want %d", tt.in, id, tt.want)
			}
		})
	}
}

func TestValue_UnmarshalJSON(t *testing.T) {
	var sv struct {
		A Value `json:"a"`
		B Value `json:"b"`
		C Value `json:"c"`
		D Value `json:"d"`
		E Value `json:"e"`
	}
	if err := json.Unmarshal([]byte(`{"a":"on","b":1.0,"c":true,"d":null}`), &sv); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	tests := []struct {
		name    string
		v       Value
		present bool
		str     string
	}{
		{"string", sv.A, true, "on"},
		{"number keeps literal", sv.B, true, "1.0"},
		{"bool", sv.C, true, "True"},
		{"null", sv.D, true, "None"},
		{"absent", sv.E, false, "None"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.v.Present() != tt.present {
				t.Errorf("Present() = %v, want %v", tt.v.Present(), tt.present)
			}
			if tt.v.String() != tt.str {
				t.Errorf("String() = %q, want %q", tt.v.String(), tt.str)
			}
		})
	}
}

func TestValue_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Value `json:"a"`
		B Value `json:"b"`
	}{A: NumberValue("1.0"), B: Value{}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"a":1.0,"b":null}` {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestStatusDocument_MalformedDeviceIsIsolated(t *testing.T) {
	var doc StatusDocument
	data := `{"devices":[
		{"id": 12, "states": [{"variable": "Status", "value": "1"}]},
		{"id": 13, "states": "not-a-list"},
		"garbage"
	]}`
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(doc.Devices) != 3 {
		t.Fatalf("len(Devices) = %d, want 3", len(doc.Devices))
	}
	if doc.Devices[0].Err != nil || len(doc.Devices[0].States) != 1 {
		t.Errorf("device 12 = %+v", doc.Devices[0])
	}
	if doc.Devices[1].Err == nil || doc.Devices[2].Err == nil {
		t.Error("malformed devices decoded without error")
	}
}

func TestSnapshotDocument_MalformedEntriesAreIsolated(t *testing.T) {
	var doc SnapshotDocument
	data := `{
		"rooms": [{"id": 1, "name": "Nappali"}, {"id": "abc"}],
		"categories": [{"id": 2, "name": "Dimmable Light"}, 7],
		"scenes": [{"id": 5, "name": "Este", "room": 1}, {"id": 6, "room": "?"}],
		"devices": [
			{"id": 12, "name": "Lámpa", "category": 2, "room": 1},
			{"id": 13, "name": "Bad room", "category": 2, "room": ""}
		]
	}`
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v, want nil", err)
	}

	if doc.Rooms[0].Err != nil || doc.Rooms[1].Err == nil {
		t.Errorf("Rooms errs = %v, %v", doc.Rooms[0].Err, doc.Rooms[1].Err)
	}
	if doc.Categories[0].Err != nil || doc.Categories[1].Err == nil {
		t.Errorf("Categories errs = %v, %v", doc.Categories[0].Err, doc.Categories[1].Err)
	}
	if doc.Scenes[0].Err != nil || doc.Scenes[1].Err == nil {
		t.Errorf("Scenes errs = %v, %v", doc.Scenes[0].Err, doc.Scenes[1].Err)
	}
	if doc.Devices[0].Err != nil || doc.Devices[0].Name != "Lámpa" {
		t.Errorf("device 12 = %+v", doc.Devices[0])
	}
	if doc.Devices[1].Err == nil {
		t.Error("device with empty room decoded without error")
	}
}
