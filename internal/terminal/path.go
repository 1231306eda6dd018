package terminal

import "github.com/ayaxan7/betTermux/pkg/tree"

// PathState is the working directory: the node id every request resolves
// against, and its best-effort display path.
type PathState struct {
	WorkingDirID string
	DisplayPath  string
}

// NewPathState returns the state of a fresh session at rootID.
func NewPathState(rootID string) PathState {
	return PathState{WorkingDirID: rootID, DisplayPath: tree.Home}
}

// NextDisplayPath derives the display path after cd to target when the
// backend did not supply one.
func NextDisplayPath(current, target string) string {
	return tree.Next(current, target)
}

// Apply returns the state after a successful cd to target resolved as res.
func (p PathState) Apply(res PathResolution, target string) PathState {
	next := PathState{WorkingDirID: res.NodeID()}
	if s, ok := res.(Structured); ok && s.Path != "" {
		next.DisplayPath = s.Path
	} else {
		next.DisplayPath = NextDisplayPath(p.DisplayPath, target)
	}
	return next
}
