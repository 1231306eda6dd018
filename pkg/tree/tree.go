// Package tree provides helpers for display paths and node listings.
package tree

import (
	"path"
	"strings"

	"github.com/ayaxan7/betTermux/pkg/models"
)

// Home is the display path of the user's root directory.
const Home = "~"

// FindByName returns the first node in children named name with the given type.
// An empty nodeType matches any type.
func FindByName(children []models.Node, name, nodeType string) (models.Node, bool) {
	for _, child := range children {
		if child.Name == name && (nodeType == "" || child.Type == nodeType) {
			return child, true
		}
	}
	return models.Node{}, false
}

// FindByID finds a node by its ID in a listing.
func FindByID(children []models.Node, id string) (models.Node, bool) {
	for _, child := range children {
		if child.ID == id {
			return child, true
		}
	}
	return models.Node{}, false
}

// CountTypes counts directories and files in a listing.
func CountTypes(children []models.Node) (dirs, files int) {
	for _, child := range children {
		switch {
		case child.IsDir():
			dirs++
		case child.IsFile():
			files++
		}
	}
	return dirs, files
}

// SplitTarget splits a write target into its directory part and file name.
// A target without a slash has dir ".". A leading slash alone gives an empty
// dir, which callers treat as the working directory.
func SplitTarget(target string) (dir, name string) {
	i := strings.LastIndex(target, "/")
	if i < 0 {
		return ".", target
	}
	return target[:i], target[i+1:]
}

// IsAbsolute reports whether a cd target replaces the display path outright.
func IsAbsolute(target string) bool {
	return strings.HasPrefix(target, "/") || strings.HasPrefix(target, Home)
}

// Parent strips the last segment of a display path.
func Parent(display string) string {
	i := strings.LastIndex(display, "/")
	switch {
	case i < 0:
		return Home
	case i == 0:
		return "/"
	}
	return display[:i]
}

// Join appends a relative target to a display path and cleans . and .. segments.
// Unlike plain concatenation, a target under Home gets a separator, so "docs"
// from "~" becomes "~/docs" rather than "~docs", and ".." never climbs above
// Home or "/".
func Join(display, target string) string {
	if target == "" || target == "." {
		return display
	}

	var joined string
	switch {
	case display == Home:
		joined = Home + "/" + target
	case strings.HasSuffix(display, "/"):
		joined = display + target
	default:
		joined = display + "/" + target
	}
	return clean(joined)
}

// Next computes the display path after a successful cd to target.
func Next(display, target string) string {
	switch {
	case IsAbsolute(target):
		return target
	case target == "..":
		return Parent(display)
	}
	return Join(display, target)
}

func clean(display string) string {
	switch {
	case strings.HasPrefix(display, Home+"/"):
		rest := path.Clean(strings.TrimPrefix(display, Home+"/"))
		if rest == "." {
			return Home
		}
		if rest == ".." || strings.HasPrefix(rest, "../") {
			return Home
		}
		return Home + "/" + rest
	case strings.HasPrefix(display, "/"):
		return path.Clean(display)
	}
	return display
}
