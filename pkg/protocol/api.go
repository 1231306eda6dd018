// Package protocol defines the request/response types of the file-system action API.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Actions understood by POST /api/fs.
const (
	ActionGetChildren           = "getChildren"
	ActionResolveNodePath       = "resolveNodePath"
	ActionGetNode               = "getNode"
	ActionCreateDirectoryNode   = "createDirectoryNode"
	ActionCreateFileNode        = "createFileNode"
	ActionDeleteNode            = "deleteNodeAction"
	ActionGetNodePathString     = "getNodePathString"
	ActionUpdateFileNodeContent = "updateFileNodeContent"
	ActionDeleteUserAccount     = "deleteUserAccount"
	ActionInitializeFileSystem  = "initializeFileSystem"
)

// IsReadOnly reports whether action only reads backend state, so sending it
// twice has the same effect as sending it once.
func IsReadOnly(action string) bool {
	switch action {
	case ActionGetChildren, ActionResolveNodePath, ActionGetNode, ActionGetNodePathString:
		return true
	}
	return false
}

// Payload is the action-specific argument map. Only non-empty fields are sent.
type Payload map[string]any

// ActionRequest is the body of POST /api/fs.
type ActionRequest struct {
	Action  string  `json:"action"`
	UID     string  `json:"uid"`
	Payload Payload `json:"payload"`
}

// ActionResponse is the envelope returned for every action.
// Data is left raw; its shape depends on the action and on the backend version.
type ActionResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ErrorOr returns the response error, or fallback when the backend sent none.
func (r *ActionResponse) ErrorOr(fallback string) string {
	if r == nil || r.Error == "" {
		return fallback
	}
	return r.Error
}

// ErrorResponse is returned on transport-level API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// GetChildren lists the children of parentID.
func GetChildren(parentID string) Payload {
	return Payload{"parentId": parentID}
}

// ResolveNodePath resolves targetPath relative to currentDirID.
func ResolveNodePath(currentDirID, targetPath string) Payload {
	return Payload{"currentDirId": currentDirID, "targetPath": targetPath}
}

// GetNode fetches a node with its content.
func GetNode(id string) Payload {
	return Payload{"id": id}
}

// CreateDirectoryNode creates a directory named name under parentID.
func CreateDirectoryNode(name, parentID string) Payload {
	return Payload{"name": name, "parentId": parentID}
}

// CreateFileNode creates a file under parentID. Empty content and mimeType are omitted.
func CreateFileNode(name, parentID, content, mimeType string) Payload {
	p := Payload{"name": name, "parentId": parentID}
	if content != "" {
		p["content"] = content
	}
	if mimeType != "" {
		p["mimeType"] = mimeType
	}
	return p
}

// DeleteNode deletes the node with nodeID.
func DeleteNode(nodeID string) Payload {
	return Payload{"nodeId": nodeID}
}

// GetNodePathString returns the absolute path string of nodeID.
func GetNodePathString(nodeID string) Payload {
	return Payload{"nodeId": nodeID}
}

// UpdateFileNodeContent overwrites or appends to a file's content.
func UpdateFileNodeContent(id, newContent string, appendContent bool) Payload {
	return Payload{"id": id, "newContent": newContent, "append": appendContent}
}

// DeleteUserAccount removes every node owned by userID.
func DeleteUserAccount(userID string) Payload {
	return Payload{"userId": userID}
}

// String returns the string value stored under key, if any.
func (p Payload) String(key string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// Bool returns the bool value stored under key.
func (p Payload) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}
