package playbook

import "strings"

// DisplayIDPrefix is prepended to a playbook key to derive the initial
// renderable identifier (e.g. "deploy" -> "sensor_deploy").
const DisplayIDPrefix = "sensor_"

// Attributes holds free-form metadata reported alongside a playbook status.
// Values are arbitrary JSON scalars, arrays, or objects.
type Attributes map[string]any

// DeepCopy returns a recursive copy of the attributes.
// Nested maps and slices are copied; scalars are shared (immutable in JSON terms).
func (a Attributes) DeepCopy() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = deepCopyValue(v)
	}
	return out
}

// Merge returns a copy of a with delta applied on top (union,
// last-write-wins per attribute key). Keys absent from delta are kept.
func (a Attributes) Merge(delta Attributes) Attributes {
	out := a.DeepCopy()
	if out == nil {
		out = make(Attributes, len(delta))
	}
	for k, v := range delta {
		out[k] = deepCopyValue(v)
	}
	return out
}

// deepCopyValue copies nested JSON-like structures.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = deepCopyValue(inner)
		}
		return out
	case Attributes:
		return val.DeepCopy()
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = deepCopyValue(inner)
		}
		return out
	default:
		return val
	}
}

// Record is the authoritative state of one monitored playbook.
//
// Key is the stable, producer-chosen identity and never changes after
// creation. DisplayID is the host-facing renderable identifier; it starts
// as DisplayIDPrefix+Key but can be rewritten by an external registry
// rename (see the rename package).
type Record struct {
	Key        string     `json:"key"`
	DisplayID  string     `json:"display_id"`
	Status     string     `json:"status"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// DeepCopy returns a copy of the record that shares no mutable state
// with the original. Callers can safely modify the result.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Attributes = r.Attributes.DeepCopy()
	return &out
}

// DisplayIDFor derives the initial display identifier for a key.
func DisplayIDFor(key string) string {
	return DisplayIDPrefix + key
}

// ValidKey reports whether a producer-supplied key is acceptable.
// Keys are free-form ("site deploy" is a valid playbook name); only
// empty and whitespace-only keys are rejected.
func ValidKey(key string) bool {
	return strings.TrimSpace(key) != ""
}
