package terminal

// HistoryNavigator recalls previously submitted commands. The cursor indexes
// the list of prompts only; -1 means nothing is selected.
type HistoryNavigator struct {
	cursor int
}

// NewHistoryNavigator returns a navigator with no selection.
func NewHistoryNavigator() *HistoryNavigator {
	return &HistoryNavigator{cursor: -1}
}

// Reset clears the selection. Called after every submit.
func (h *HistoryNavigator) Reset() {
	h.cursor = -1
}

// Up moves toward older commands, starting from the newest.
func (h *HistoryNavigator) Up(prompts []string) (string, bool) {
	if len(prompts) == 0 {
		return "", false
	}
	switch {
	case h.cursor < 0 || h.cursor >= len(prompts):
		h.cursor = len(prompts) - 1
	case h.cursor > 0:
		h.cursor--
	}
	return prompts[h.cursor], true
}

// Down moves toward newer commands, stopping at the newest.
func (h *HistoryNavigator) Down(prompts []string) (string, bool) {
	if len(prompts) == 0 || h.cursor < 0 {
		return "", false
	}
	if h.cursor >= len(prompts) {
		h.cursor = len(prompts) - 1
	} else if h.cursor < len(prompts)-1 {
		h.cursor++
	}
	return prompts[h.cursor], true
}

// Ring keeps the most recent commands for suggestion context.
type Ring struct {
	items []string
	limit int
}

// NewRing creates a ring holding at most limit commands.
func NewRing(limit int) *Ring {
	if limit < 1 {
		limit = 1
	}
	return &Ring{limit: limit}
}

// Add appends cmd, dropping the oldest entry when full.
func (r *Ring) Add(cmd string) {
	if len(r.items) == r.limit {
		copy(r.items, r.items[1:])
		r.items = r.items[:len(r.items)-1]
	}
	r.items = append(r.items, cmd)
}

// Items returns the commands oldest first.
func (r *Ring) Items() []string {
	return append([]string(nil), r.items...)
}

// Len returns the number of stored commands.
func (r *Ring) Len() int {
	return len(r.items)
}
