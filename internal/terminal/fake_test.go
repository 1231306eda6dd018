package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ayaxan7/betTermux/internal/netquality"
	"github.com/ayaxan7/betTermux/internal/upload"
	"github.com/ayaxan7/betTermux/pkg/models"
	"github.com/ayaxan7/betTermux/pkg/protocol"
)

const rootID = "root"

type memNode struct {
	models.Node
}

// memFS is an in-memory action backend.
type memFS struct {
	mu    sync.Mutex
	nodes map[string]*memNode
	next  int
	calls []string

	// structured makes resolveNodePath answer {id, path} instead of a bare id.
	structured bool
	// fail makes an action answer success=false with the given error.
	fail map[string]string
	// transport makes an action fail without an envelope.
	transport map[string]error
	// override replaces the data of an action's successful response.
	override map[string]json.RawMessage
	// panicOn makes an action panic.
	panicOn string
}

func newMemFS() *memFS {
	fs := &memFS{
		nodes:     map[string]*memNode{},
		fail:      map[string]string{},
		transport: map[string]error{},
		override:  map[string]json.RawMessage{},
	}
	fs.nodes[rootID] = &memNode{models.Node{ID: rootID, Name: "", Type: models.TypeDirectory}}
	return fs
}

func (fs *memFS) called(action string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := 0
	for _, c := range fs.calls {
		if c == action {
			n++
		}
	}
	return n
}

func (fs *memFS) add(parentID, name, nodeType, mime, content string) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.addLocked(parentID, name, nodeType, mime, content)
}

func (fs *memFS) addLocked(parentID, name, nodeType, mime, content string) string {
	fs.next++
	id := fmt.Sprintf("n%d", fs.next)
	fs.nodes[id] = &memNode{models.Node{
		ID: id, Name: name, Type: nodeType, MimeType: mime, Content: content, ParentID: parentID,
	}}
	return id
}

func (fs *memFS) children(parentID string) []*memNode {
	var out []*memNode
	for _, n := range fs.nodes {
		if n.ParentID == parentID && n.ID != rootID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (fs *memFS) child(parentID, name string) *memNode {
	for _, n := range fs.children(parentID) {
		if n.Name == name {
			return n
		}
	}
	return nil
}

func (fs *memFS) pathOf(id string) string {
	var parts []string
	for id != rootID {
		n, ok := fs.nodes[id]
		if !ok {
			break
		}
		parts = append([]string{n.Name}, parts...)
		id = n.ParentID
	}
	return "/" + strings.Join(parts, "/")
}

func (fs *memFS) resolve(currentID, target string) (*memNode, bool) {
	cur := currentID
	switch {
	case target == "~" || target == "/":
		return fs.nodes[rootID], true
	case strings.HasPrefix(target, "~/"):
		cur, target = rootID, strings.TrimPrefix(target, "~/")
	case strings.HasPrefix(target, "/"):
		cur, target = rootID, strings.TrimPrefix(target, "/")
	}
	for _, seg := range strings.Split(target, "/") {
		switch seg {
		case "", ".":
		case "..":
			if cur != rootID {
				cur = fs.nodes[cur].ParentID
			}
		default:
			n := fs.child(cur, seg)
			if n == nil {
				return nil, false
			}
			cur = n.ID
		}
	}
	return fs.nodes[cur], true
}

func (fs *memFS) deleteTree(id string) int {
	count := 1
	for _, c := range fs.children(id) {
		count += fs.deleteTree(c.ID)
	}
	delete(fs.nodes, id)
	return count
}

func okData(data any) (*protocol.ActionResponse, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &protocol.ActionResponse{Success: true, Data: raw}, nil
}

func failMsg(msg string) (*protocol.ActionResponse, error) {
	return &protocol.ActionResponse{Success: false, Error: msg}, nil
}

func (fs *memFS) PerformAction(_ context.Context, action string, p protocol.Payload) (*protocol.ActionResponse, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.calls = append(fs.calls, action)

	if action == fs.panicOn {
		panic("backend exploded")
	}
	if err, ok := fs.transport[action]; ok {
		return nil, err
	}
	if msg, ok := fs.fail[action]; ok {
		return failMsg(msg)
	}
	if raw, ok := fs.override[action]; ok {
		return &protocol.ActionResponse{Success: true, Data: raw}, nil
	}

	switch action {
	case protocol.ActionGetChildren:
		parent, exists := fs.nodes[p.String("parentId")]
		if !exists {
			return failMsg("Parent not found")
		}
		items := []map[string]any{}
		for _, n := range fs.children(parent.ID) {
			item := map[string]any{"id": n.ID, "name": n.Name, "type": n.Type}
			if n.MimeType != "" {
				item["mimeType"] = n.MimeType
			}
			items = append(items, item)
		}
		return okData(items)

	case protocol.ActionResolveNodePath:
		n, found := fs.resolve(p.String("currentDirId"), p.String("targetPath"))
		if !found {
			return failMsg("Not found: " + p.String("targetPath"))
		}
		if fs.structured {
			return okData(map[string]string{"id": n.ID, "path": fs.pathOf(n.ID)})
		}
		return okData(n.ID)

	case protocol.ActionGetNode:
		n, found := fs.nodes[p.String("id")]
		if !found {
			return failMsg("Node not found")
		}
		return okData(map[string]string{"id": n.ID, "name": n.Name, "type": n.Type, "mimeType": n.MimeType, "content": n.Content})

	case protocol.ActionCreateDirectoryNode, protocol.ActionCreateFileNode:
		parentID := p.String("parentId")
		if _, exists := fs.nodes[parentID]; !exists {
			return failMsg("Parent not found")
		}
		if fs.child(parentID, p.String("name")) != nil {
			return failMsg("A node with this name already exists")
		}
		nodeType := models.TypeFile
		if action == protocol.ActionCreateDirectoryNode {
			nodeType = models.TypeDirectory
		}
		id := fs.addLocked(parentID, p.String("name"), nodeType, p.String("mimeType"), p.String("content"))
		return okData(map[string]string{"id": id})

	case protocol.ActionDeleteNode:
		id := p.String("nodeId")
		if _, exists := fs.nodes[id]; !exists || id == rootID {
			return failMsg("Cannot delete node")
		}
		fs.deleteTree(id)
		return okData(nil)

	case protocol.ActionGetNodePathString:
		return okData(fs.pathOf(p.String("nodeId")))

	case protocol.ActionUpdateFileNodeContent:
		n, found := fs.nodes[p.String("id")]
		if !found {
			return failMsg("Node not found")
		}
		if p.Bool("append") && n.Content != "" {
			n.Content += "\n" + p.String("newContent")
		} else {
			n.Content = p.String("newContent")
		}
		return okData(nil)

	case protocol.ActionDeleteUserAccount:
		count := 0
		for _, c := range fs.children(rootID) {
			count += fs.deleteTree(c.ID)
		}
		return okData(map[string]any{"deletedCount": count, "message": "User data deleted"})
	}
	return failMsg("Unknown action: " + action)
}

type fakeAuth struct {
	mu         sync.Mutex
	uid        string
	signOutErr error
	deleteErr  error
	signedOut  bool
	deleted    bool
}

func (a *fakeAuth) CurrentUserID() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uid, a.uid != ""
}

func (a *fakeAuth) SignOut(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.signOutErr != nil {
		return a.signOutErr
	}
	a.signedOut = true
	return nil
}

func (a *fakeAuth) DeleteAccount(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deleteErr != nil {
		return a.deleteErr
	}
	a.deleted = true
	return nil
}

// chanPicker resolves each Pick with the next queued result.
type chanPicker struct {
	results chan upload.Result
}

func newChanPicker() *chanPicker {
	return &chanPicker{results: make(chan upload.Result, 1)}
}

func (p *chanPicker) Pick(ctx context.Context) <-chan upload.Result {
	out := make(chan upload.Result, 1)
	go func() {
		select {
		case r := <-p.results:
			out <- r
		case <-ctx.Done():
			out <- upload.Result{Err: upload.ErrCancelled}
		}
	}()
	return out
}

type fakeTester struct {
	mu     sync.Mutex
	begun  int
	runs   int
	runErr error
	state  netquality.TestState
}

func (f *fakeTester) Begin() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun++
	f.state.IsRunning = true
}

func (f *fakeTester) Run(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.runErr
}

func (f *fakeTester) State() netquality.TestState {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.state
	s.LogMessages = append([]string(nil), f.state.LogMessages...)
	return s
}

var errNetwork = errors.New("dial tcp 127.0.0.1:3000: connect: connection refused")
