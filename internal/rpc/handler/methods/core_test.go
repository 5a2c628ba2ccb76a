package methods

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/brianly1003/aidesk/internal/domain/events"
	"github.com/brianly1003/aidesk/internal/domain/ports"
	"github.com/brianly1003/aidesk/internal/registry"
	"github.com/brianly1003/aidesk/internal/rpc/handler"
	"github.com/brianly1003/aidesk/internal/rpc/message"
	"github.com/brianly1003/aidesk/internal/scheduler"
)

const testWorkspace = "file:///home/dev/api"

type fakeRefresher struct {
	result registry.Result
	calls  int
}

func (f *fakeRefresher) ReconcileNow(context.Context) registry.Result {
	f.calls++
	return f.result
}

func (f *fakeRefresher) Stats() scheduler.Stats {
	return scheduler.Stats{FastTicks: 7}
}

type fakeFocus struct {
	id, name string
}

func (f *fakeFocus) FocusedSession(context.Context, string) (string, string, bool) {
	if f.id == "" {
		return "", "", false
	}
	return f.id, f.name, true
}

// recordingHub captures published events synchronously.
type recordingHub struct {
	published []events.Event
}

func (h *recordingHub) Start() error               { return nil }
func (h *recordingHub) Stop() error                { return nil }
func (h *recordingHub) Publish(e events.Event)     { h.published = append(h.published, e) }
func (h *recordingHub) Subscribe(ports.Subscriber) {}
func (h *recordingHub) Unsubscribe(string)         {}
func (h *recordingHub) SubscriberCount() int       { return 0 }

func (h *recordingHub) types() []events.EventType {
	out := make([]events.EventType, 0, len(h.published))
	for _, e := range h.published {
		out = append(out, e.Type())
	}
	return out
}

func newTestService(t *testing.T) (*CoreService, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil, "developer")
	svc := NewCoreService(reg, &fakeRefresher{result: registry.Result{Added: 2}}, &fakeFocus{}, nil, nil, "test")
	return svc, reg
}

func mustParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return data
}

func seedSession(t *testing.T, reg *registry.Registry, name, persona string) *registry.Session {
	t.Helper()
	w, err := reg.Resolve(testWorkspace, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	sess, err := w.CreateSession(registry.CreateSessionParams{Persona: persona, Name: name})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func TestRegisterMethods(t *testing.T) {
	svc, _ := newTestService(t)
	r := handler.NewRegistry()
	svc.RegisterMethods(r)

	for _, method := range []string{
		"state/get", "session/list", "session/search", "session/create",
		"session/remove", "session/focus", "registry/refresh",
		"workspace/remove", "status/get",
	} {
		if !r.Has(method) {
			t.Errorf("method %s not registered", method)
		}
	}
}

func TestStateGet(t *testing.T) {
	svc, reg := newTestService(t)
	seedSession(t, reg, "Fix login", "developer")
	seedSession(t, reg, "Add metrics", "developer")

	result, rpcErr := svc.StateGet(context.Background(), nil)
	if rpcErr != nil {
		t.Fatalf("StateGet: %v", rpcErr)
	}
	state := result.(StateGetResult)
	if state.Count != 2 {
		t.Errorf("count = %d, want 2", state.Count)
	}
	ws, ok := state.Workspaces[testWorkspace]
	if !ok {
		t.Fatalf("workspace missing from dump: %v", state.Workspaces)
	}
	if len(ws.Sessions) != 2 {
		t.Errorf("sessions = %d, want 2", len(ws.Sessions))
	}
}

func TestSessionCreateAndRemove(t *testing.T) {
	svc, reg := newTestService(t)

	result, rpcErr := svc.SessionCreate(context.Background(), mustParams(t, SessionCreateParams{
		WorkspaceID: testWorkspace,
		Name:        "Review PR",
	}))
	if rpcErr != nil {
		t.Fatalf("SessionCreate: %v", rpcErr)
	}
	created := result.(registry.SessionState)
	if created.Persona != "developer" {
		t.Errorf("persona = %q, want default", created.Persona)
	}

	// Same explicit ID again is rejected.
	_, rpcErr = svc.SessionCreate(context.Background(), mustParams(t, SessionCreateParams{
		WorkspaceID: testWorkspace,
		SessionID:   created.ID,
	}))
	if rpcErr == nil || rpcErr.Code != message.DuplicateSession {
		t.Errorf("expected duplicate session error, got %v", rpcErr)
	}

	_, rpcErr = svc.SessionRemove(context.Background(), mustParams(t, SessionRemoveParams{
		WorkspaceID: testWorkspace,
		SessionID:   created.ID,
	}))
	if rpcErr != nil {
		t.Fatalf("SessionRemove: %v", rpcErr)
	}

	w, _ := reg.Workspace(testWorkspace)
	if w.SessionCount() != 0 {
		t.Errorf("session count = %d after remove", w.SessionCount())
	}
}

func TestSessionCreateAdoptsFocusedExternalID(t *testing.T) {
	reg := registry.New(nil, "developer")
	svc := NewCoreService(reg, nil, &fakeFocus{id: "ext-7", name: "Editor chat"}, nil, nil, "test")

	result, rpcErr := svc.SessionCreate(context.Background(), mustParams(t, SessionCreateParams{
		WorkspaceID: testWorkspace,
	}))
	if rpcErr != nil {
		t.Fatalf("SessionCreate: %v", rpcErr)
	}
	created := result.(registry.SessionState)
	if created.ID != "ext-7" {
		t.Errorf("id = %q, want focused external id", created.ID)
	}
	if created.Name != "Editor chat" {
		t.Errorf("name = %q, want external name", created.Name)
	}

	// An explicit id wins over the focus hint.
	result, rpcErr = svc.SessionCreate(context.Background(), mustParams(t, SessionCreateParams{
		WorkspaceID: testWorkspace,
		SessionID:   "my-id",
	}))
	if rpcErr != nil {
		t.Fatalf("SessionCreate: %v", rpcErr)
	}
	if result.(registry.SessionState).ID != "my-id" {
		t.Error("explicit id overridden by focus hint")
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	reg := registry.New(nil, "developer")
	hub := &recordingHub{}
	svc := NewCoreService(reg, nil, &fakeFocus{}, nil, hub, "test")

	result, rpcErr := svc.SessionCreate(context.Background(), mustParams(t, SessionCreateParams{
		WorkspaceID: testWorkspace,
		Name:        "Review PR",
	}))
	if rpcErr != nil {
		t.Fatalf("SessionCreate: %v", rpcErr)
	}
	created := result.(registry.SessionState)

	second := seedSession(t, reg, "two", "developer")
	if _, rpcErr = svc.SessionFocus(context.Background(), mustParams(t, SessionFocusParams{
		WorkspaceID: testWorkspace,
		SessionID:   created.ID,
	})); rpcErr != nil {
		t.Fatalf("SessionFocus: %v", rpcErr)
	}
	if _, rpcErr = svc.SessionRemove(context.Background(), mustParams(t, SessionRemoveParams{
		WorkspaceID: testWorkspace,
		SessionID:   second.ID(),
	})); rpcErr != nil {
		t.Fatalf("SessionRemove: %v", rpcErr)
	}
	if _, rpcErr = svc.WorkspaceRemove(context.Background(), mustParams(t, WorkspaceRemoveParams{
		WorkspaceID: testWorkspace,
	})); rpcErr != nil {
		t.Fatalf("WorkspaceRemove: %v", rpcErr)
	}

	want := []events.EventType{
		events.EventTypeWorkspaceAdded, // first resolve of the workspace
		events.EventTypeSessionAdded,
		events.EventTypeFocusChanged,
		events.EventTypeSessionRemoved,
		events.EventTypeWorkspaceRemoved,
	}
	got := hub.types()
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	added, ok := hub.published[1].(*events.BaseEvent)
	if !ok || added.GetWorkspaceID() != testWorkspace {
		t.Errorf("session_added workspace = %v", hub.published[1])
	}
	payload, ok := added.Payload.(events.SessionPayload)
	if !ok || payload.SessionID != created.ID || payload.Name != "Review PR" {
		t.Errorf("session_added payload = %+v", added.Payload)
	}
}

func TestSessionRemoveUnknownWorkspace(t *testing.T) {
	svc, _ := newTestService(t)
	_, rpcErr := svc.SessionRemove(context.Background(), mustParams(t, SessionRemoveParams{
		WorkspaceID: "file:///nowhere",
		SessionID:   "x",
	}))
	if rpcErr == nil || rpcErr.Code != message.WorkspaceNotFound {
		t.Errorf("expected workspace not found, got %v", rpcErr)
	}
}

func TestSessionFocus(t *testing.T) {
	svc, reg := newTestService(t)
	first := seedSession(t, reg, "one", "developer")
	seedSession(t, reg, "two", "developer")

	_, rpcErr := svc.SessionFocus(context.Background(), mustParams(t, SessionFocusParams{
		WorkspaceID: testWorkspace,
		SessionID:   first.ID(),
	}))
	if rpcErr != nil {
		t.Fatalf("SessionFocus: %v", rpcErr)
	}
	w, _ := reg.Workspace(testWorkspace)
	if w.ActiveSessionID() != first.ID() {
		t.Errorf("active = %q, want %q", w.ActiveSessionID(), first.ID())
	}

	_, rpcErr = svc.SessionFocus(context.Background(), mustParams(t, SessionFocusParams{
		WorkspaceID: testWorkspace,
		SessionID:   "missing",
	}))
	if rpcErr == nil || rpcErr.Code != message.SessionNotFound {
		t.Errorf("expected session not found, got %v", rpcErr)
	}
}

func TestRegistryRefresh(t *testing.T) {
	svc, _ := newTestService(t)
	result, rpcErr := svc.RegistryRefresh(context.Background(), nil)
	if rpcErr != nil {
		t.Fatalf("RegistryRefresh: %v", rpcErr)
	}
	counts := result.(map[string]int)
	if counts["added"] != 2 {
		t.Errorf("added = %d, want 2", counts["added"])
	}
}

func TestWorkspaceRemove(t *testing.T) {
	svc, reg := newTestService(t)
	seedSession(t, reg, "s", "developer")

	_, rpcErr := svc.WorkspaceRemove(context.Background(), mustParams(t, WorkspaceRemoveParams{
		WorkspaceID: testWorkspace,
	}))
	if rpcErr != nil {
		t.Fatalf("WorkspaceRemove: %v", rpcErr)
	}
	if _, ok := reg.Workspace(testWorkspace); ok {
		t.Error("workspace still present after remove")
	}

	_, rpcErr = svc.WorkspaceRemove(context.Background(), mustParams(t, WorkspaceRemoveParams{
		WorkspaceID: testWorkspace,
	}))
	if rpcErr == nil || rpcErr.Code != message.WorkspaceNotFound {
		t.Errorf("expected workspace not found, got %v", rpcErr)
	}
}

func TestStatusGet(t *testing.T) {
	svc, reg := newTestService(t)
	seedSession(t, reg, "s", "developer")

	result, rpcErr := svc.StatusGet(context.Background(), nil)
	if rpcErr != nil {
		t.Fatalf("StatusGet: %v", rpcErr)
	}
	status := result.(StatusGetResult)
	if status.Version != "test" {
		t.Errorf("version = %q", status.Version)
	}
	if status.Workspaces != 1 || status.Sessions != 1 {
		t.Errorf("counts = %d/%d, want 1/1", status.Workspaces, status.Sessions)
	}
	if status.Scheduler.FastTicks != 7 {
		t.Errorf("fast ticks = %d, want 7", status.Scheduler.FastTicks)
	}
}

func TestSessionSearch(t *testing.T) {
	svc, reg := newTestService(t)
	a := seedSession(t, reg, "Fix login flow", "developer")
	a.MergeIssueKeys([]string{"AUTH-42"})
	seedSession(t, reg, "Unrelated work", "reviewer")

	result, rpcErr := svc.SessionSearch(context.Background(), mustParams(t, SessionSearchParams{
		Query: "login",
	}))
	if rpcErr != nil {
		t.Fatalf("SessionSearch: %v", rpcErr)
	}
	matches := result.(SessionSearchResult)
	if matches.Count != 1 {
		t.Fatalf("count = %d, want 1", matches.Count)
	}
	if matches.Matches[0].Session.ID != a.ID() {
		t.Errorf("matched wrong session")
	}

	// Issue keys are searchable too.
	result, rpcErr = svc.SessionSearch(context.Background(), mustParams(t, SessionSearchParams{
		Query: "auth-42",
	}))
	if rpcErr != nil {
		t.Fatalf("SessionSearch: %v", rpcErr)
	}
	if result.(SessionSearchResult).Count != 1 {
		t.Error("issue key search missed")
	}

	_, rpcErr = svc.SessionSearch(context.Background(), mustParams(t, SessionSearchParams{}))
	if rpcErr == nil || rpcErr.Code != message.InvalidParams {
		t.Errorf("empty query should be rejected, got %v", rpcErr)
	}
}

func TestSessionSearchRanking(t *testing.T) {
	svc, reg := newTestService(t)
	nameHit := seedSession(t, reg, "deploy pipeline", "developer")
	seedSession(t, reg, "misc", "deploy-bot")

	result, rpcErr := svc.SessionSearch(context.Background(), mustParams(t, SessionSearchParams{
		Query: "deploy",
	}))
	if rpcErr != nil {
		t.Fatalf("SessionSearch: %v", rpcErr)
	}
	matches := result.(SessionSearchResult)
	if matches.Count != 2 {
		t.Fatalf("count = %d, want 2", matches.Count)
	}
	if matches.Matches[0].Session.ID != nameHit.ID() {
		t.Error("name match should rank above persona match")
	}
}
