package terminal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ayaxan7/betTermux/pkg/models"
)

var (
	// ErrMissingID is returned for an object response without an id.
	ErrMissingID = errors.New("path resolution has no id")
	// ErrUnrecognizedShape is returned when data is neither a string nor an object.
	ErrUnrecognizedShape = errors.New("unrecognized response shape")
)

// PathResolution is the decoded data of a resolveNodePath response.
type PathResolution interface {
	NodeID() string
	isPathResolution()
}

// BareID is the legacy response: just the node id.
type BareID string

// Structured carries the node id and, when the backend knows it, the display path.
type Structured struct {
	ID   string
	Path string
}

func (b BareID) NodeID() string     { return string(b) }
func (s Structured) NodeID() string { return s.ID }
func (BareID) isPathResolution()     {}
func (Structured) isPathResolution() {}

// DecodePathResolution decodes resolveNodePath data. Strings are bare ids,
// objects carry id and path. Objects keyed by _id or nodeId and
// single-element arrays are accepted for older backends.
func DecodePathResolution(raw json.RawMessage) (PathResolution, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrUnrecognizedShape
	}

	switch raw[0] {
	case '"':
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		if id == "" {
			return nil, ErrMissingID
		}
		return BareID(id), nil

	case '{':
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		id := firstString(obj, "id", "_id", "nodeId")
		if id == "" {
			return nil, ErrMissingID
		}
		return Structured{ID: id, Path: stringField(obj, "path")}, nil

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil || len(items) != 1 {
			return nil, ErrUnrecognizedShape
		}
		return DecodePathResolution(items[0])
	}

	if _, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return BareID(raw), nil
	}
	return nil, ErrUnrecognizedShape
}

// DecodeNodes decodes getChildren data. Elements that are not objects are skipped.
func DecodeNodes(raw json.RawMessage) ([]models.Node, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	nodes := make([]models.Node, 0, len(items))
	for _, item := range items {
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			continue
		}
		nodeType := stringField(obj, "type")
		if nodeType == "" {
			nodeType = "unknown"
		}
		nodes = append(nodes, models.Node{
			ID:       stringField(obj, "id"),
			Name:     stringField(obj, "name"),
			Type:     nodeType,
			MimeType: stringField(obj, "mimeType"),
		})
	}
	return nodes, nil
}

// DecodeFileNode decodes getNode data into name, content and mimeType.
func DecodeFileNode(raw json.RawMessage) (models.Node, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return models.Node{}, fmt.Errorf("decode node: %w", err)
	}
	if obj == nil {
		return models.Node{}, fmt.Errorf("decode node: %w", ErrUnrecognizedShape)
	}
	return models.Node{
		ID:       stringField(obj, "id"),
		Name:     stringField(obj, "name"),
		Type:     stringField(obj, "type"),
		MimeType: stringField(obj, "mimeType"),
		Content:  stringField(obj, "content"),
	}, nil
}

// StringifyData renders data for display: strings unquoted, null empty,
// anything else as compact JSON.
func StringifyData(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// DeleteSummary is the data of a deleteUserAccount response.
type DeleteSummary struct {
	DeletedCount int
	Message      string
}

// DecodeDeleteSummary reads deletedCount and message, defaulting both.
func DecodeDeleteSummary(raw json.RawMessage) DeleteSummary {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return DeleteSummary{}
	}
	var s DeleteSummary
	if n, ok := obj["deletedCount"].(float64); ok {
		s.DeletedCount = int(n)
	}
	s.Message = stringField(obj, "message")
	return s
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(obj, k); s != "" {
			return s
		}
	}
	return ""
}
