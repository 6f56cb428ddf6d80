package cms

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Entry is a single content record returned by the CMS. The payload is kept
// verbatim so it can be written back out unchanged; only the fields a caller
// asks for are ever interpreted.
type Entry struct {
	raw json.RawMessage
}

// NewEntry wraps a raw JSON object as an Entry
func NewEntry(raw []byte) Entry {
	return Entry{raw: append(json.RawMessage(nil), raw...)}
}

// Raw returns the untouched JSON payload of the entry
func (e Entry) Raw() json.RawMessage {
	return e.raw
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if len(e.raw) == 0 {
		return []byte("null"), nil
	}
	return e.raw, nil
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	e.raw = append(json.RawMessage(nil), data...)
	return nil
}

// ID returns the entry's "id" field or an empty string when it has none
func (e Entry) ID() string {
	var fields struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(e.raw, &fields); err != nil {
		return ""
	}
	return fields.ID
}

// FieldPathError reports that a dotted field path could not be resolved to a
// non-empty string inside an entry.
type FieldPathError struct {
	Path    string
	Segment string
	Reason  string
}

func (e *FieldPathError) Error() string {
	return fmt.Sprintf("field path %q: segment %q %s", e.Path, e.Segment, e.Reason)
}

// ImageURL resolves a dotted field path such as "thumbnail.url" and returns the
// string found there.
func (e Entry) ImageURL(fieldPath string) (string, error) {
	segments := strings.Split(fieldPath, ".")

	var current any
	if err := json.Unmarshal(e.raw, &current); err != nil {
		return "", fmt.Errorf("failed to decode entry: %w", err)
	}

	for _, segment := range segments {
		object, ok := current.(map[string]any)
		if !ok {
			return "", &FieldPathError{Path: fieldPath, Segment: segment, Reason: "has no parent object"}
		}
		value, ok := object[segment]
		if !ok || value == nil {
			return "", &FieldPathError{Path: fieldPath, Segment: segment, Reason: "is missing"}
		}
		current = value
	}

	url, ok := current.(string)
	if !ok {
		return "", &FieldPathError{Path: fieldPath, Segment: segments[len(segments)-1], Reason: "is not a string"}
	}
	if url == "" {
		return "", &FieldPathError{Path: fieldPath, Segment: segments[len(segments)-1], Reason: "is empty"}
	}
	return url, nil
}
