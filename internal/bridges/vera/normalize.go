package vera

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Tracked state variables. Every other variable in a status report is ignored.
const (
	VariableStatus          = "Status"
	VariableLoadLevelStatus = "LoadLevelStatus"
	VariableTripped         = "Tripped"
)

// IsTracked reports whether the detector handles the variable.
func IsTracked(variable string) bool {
	switch variable {
	case VariableStatus, VariableLoadLevelStatus, VariableTripped:
		return true
	}
	return false
}

// NormalizeValue converts a raw state value to a number.
//
// Booleans and the words true/on/1 and false/off/0 (any case, surrounding
// space ignored) map to 1 and 0. Otherwise the variable decides:
// LoadLevelStatus parses the number with "" as 0, Status is 1 for a positive
// number and 0 otherwise, Tripped is 1 only for the true words, and any
// other variable parses the number with "" as 0.
//
// The second result is false when the value cannot be converted; such an
// event is dropped.
func NormalizeValue(raw Value, variable string) (float64, bool) {
	text, isText := rawText(raw)

	switch x := raw.Raw().(type) {
	case bool:
		return boolToFloat(x), true
	case string:
		text = strings.ToLower(strings.TrimSpace(x))
		switch text {
		case "true", "on", "1":
			return 1, true
		case "false", "off", "0":
			return 0, true
		}
	}

	switch variable {
	case VariableStatus:
		f, ok := parseFinite(text, isText)
		if !ok {
			return 0, false
		}
		if f > 0 {
			return 1, true
		}
		return 0, true
	case VariableTripped:
		switch strings.ToLower(raw.String()) {
		case "true", "on", "1":
			return 1, true
		}
		return 0, true
	default:
		if isText && text == "" {
			return 0, true
		}
		return parseFinite(text, isText)
	}
}

// rawText returns the text a numeric parse works on: the string itself or
// the literal of a JSON number. Other shapes are not parseable.
func rawText(raw Value) (string, bool) {
	switch x := raw.Raw().(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	}
	return "", false
}

func parseFinite(text string, ok bool) (float64, bool) {
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
