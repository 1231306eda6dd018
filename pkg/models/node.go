// Package models contains the data types shared by the client and the terminal.
package models

import "strings"

// Node types as reported by the backend.
const (
	TypeFile      = "file"
	TypeDirectory = "directory"
)

// MimePlainText is the MIME type written by echo redirection.
const MimePlainText = "text/plain"

// Node is a file or directory record in the remote file system.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	MimeType string `json:"mimeType,omitempty"`
	Content  string `json:"content,omitempty"`
	Path     string `json:"path,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

// IsDir reports whether the node is a directory.
func (n Node) IsDir() bool {
	return n.Type == TypeDirectory
}

// IsFile reports whether the node is a file.
func (n Node) IsFile() bool {
	return n.Type == TypeFile
}

// IsImage reports whether the node carries image content.
func (n Node) IsImage() bool {
	return strings.HasPrefix(n.MimeType, "image/")
}

// IsText reports whether the node content can be shown as text.
func (n Node) IsText() bool {
	return IsTextMime(n.MimeType)
}

// IsTextMime reports whether a MIME type is text-like.
func IsTextMime(mimeType string) bool {
	return mimeType == MimePlainText ||
		mimeType == "application/json" ||
		strings.Contains(mimeType, "text")
}
