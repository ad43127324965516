package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"codepair/internal/store"
	"codepair/internal/templates"
	"codepair/internal/websocket"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// failingStore wraps a real store and injects errors.
type failingStore struct {
	interfaces.SessionStore
	createErr error
	getErr    error
}

func (f *failingStore) Create(ctx context.Context, s *types.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.SessionStore.Create(ctx, s)
}

func (f *failingStore) Get(ctx context.Context, id string) (*types.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.SessionStore.Get(ctx, id)
}

type stubConn struct {
	id        string
	sessionID string
}

func (s *stubConn) ID() string                    { return s.id }
func (s *stubConn) WriteJSON(v interface{}) error { return nil }
func (s *stubConn) Close() error                  { return nil }
func (s *stubConn) SessionID() string             { return s.sessionID }
func (s *stubConn) SetSessionID(id string)        { s.sessionID = id }

func newTestManager() (*Manager, *websocket.Registry) {
	registry := websocket.NewRegistry()
	return NewManager(store.NewMemoryStore(), registry, zap.NewNop()), registry
}

func TestManager_ImplementsDirectory(t *testing.T) {
	var _ interfaces.SessionDirectory = &Manager{}
}

func TestCreateSession_Success(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, "Pairing", "python")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if len(session.ID) != 8 {
		t.Errorf("Expected 8 character id, got %q", session.ID)
	}
	if session.Name != "Pairing" {
		t.Errorf("Expected name Pairing, got %s", session.Name)
	}
	if session.Language != "python" {
		t.Errorf("Expected language python, got %s", session.Language)
	}
	if session.Document != templates.ForLanguage("python") {
		t.Errorf("Expected python template, got %q", session.Document)
	}
	if session.CreatedAt.IsZero() || session.CreatedAt.Location() != time.UTC {
		t.Errorf("Expected UTC creation time, got %v", session.CreatedAt)
	}

	got, users, err := manager.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.ID != session.ID {
		t.Errorf("Expected id %s, got %s", session.ID, got.ID)
	}
	if users == nil || len(users) != 0 {
		t.Errorf("Expected empty participant list, got %v", users)
	}
}

func TestCreateSession_UnknownLanguageUsesFallback(t *testing.T) {
	manager, _ := newTestManager()

	session, err := manager.CreateSession(context.Background(), "Ruby time", "ruby")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.Document != templates.Fallback {
		t.Errorf("Expected fallback template, got %q", session.Document)
	}
	if session.Language != "ruby" {
		t.Errorf("Expected language to be kept as ruby, got %s", session.Language)
	}
}

func TestCreateSession_Validation(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	tests := []struct {
		name     string
		sName    string
		language string
	}{
		{name: "missing name", sName: "", language: "go"},
		{name: "missing language", sName: "Interview", language: ""},
		{name: "missing both", sName: "", language: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.CreateSession(ctx, tt.sName, tt.language)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Expected ErrInvalidRequest, got %v", err)
			}
		})
	}

	count, _ := manager.CountSessions(ctx)
	if count != 0 {
		t.Errorf("Expected no sessions stored after invalid creates, got %d", count)
	}
}

func TestCreateSession_RetriesOnCollision(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	manager.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := manager.CreateSession(ctx, "one", "go")
	if err != nil {
		t.Fatalf("First create failed: %v", err)
	}
	second, err := manager.CreateSession(ctx, "two", "go")
	if err != nil {
		t.Fatalf("Second create failed: %v", err)
	}

	if first.ID != "aaaaaaaa" || second.ID != "bbbbbbbb" {
		t.Errorf("Expected ids aaaaaaaa and bbbbbbbb, got %s and %s", first.ID, second.ID)
	}
}

func TestCreateSession_IDExhausted(t *testing.T) {
	manager, _ := newTestManager()
	manager.newID = func() string { return "samesame" }
	ctx := context.Background()

	if _, err := manager.CreateSession(ctx, "one", "go"); err != nil {
		t.Fatalf("First create failed: %v", err)
	}
	if _, err := manager.CreateSession(ctx, "two", "go"); !errors.Is(err, ErrIDExhausted) {
		t.Errorf("Expected ErrIDExhausted, got %v", err)
	}
}

func TestCreateSession_StoreFailure(t *testing.T) {
	registry := websocket.NewRegistry()
	boom := errors.New("disk full")
	manager := NewManager(&failingStore{SessionStore: store.NewMemoryStore(), createErr: boom}, registry, zap.NewNop())

	if _, err := manager.CreateSession(context.Background(), "x", "go"); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped store error, got %v", err)
	}
}

func TestGetAndUpdate_UnknownSession(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	doc := "x"

	if _, _, err := manager.GetSession(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound from Get, got %v", err)
	}
	if _, err := manager.UpdateSession(ctx, "nope", types.SessionUpdate{Document: &doc}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound from Update, got %v", err)
	}
	if _, err := manager.UpdateSession(ctx, "nope", types.SessionUpdate{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound from empty Update, got %v", err)
	}
}

func TestUpdateSession_Partial(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	session, _ := manager.CreateSession(ctx, "Partial", "javascript")

	lang := "go"
	updated, err := manager.UpdateSession(ctx, session.ID, types.SessionUpdate{Language: &lang})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated.Language != "go" {
		t.Errorf("Expected language go, got %s", updated.Language)
	}
	if updated.Document != session.Document {
		t.Error("Language-only update changed the document")
	}

	doc := "fmt.Println(1)"
	updated, err = manager.UpdateSession(ctx, session.ID, types.SessionUpdate{Document: &doc})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated.Document != doc || updated.Language != "go" {
		t.Errorf("Unexpected state after document update: %+v", updated)
	}

	unchanged, err := manager.UpdateSession(ctx, session.ID, types.SessionUpdate{})
	if err != nil {
		t.Fatalf("No-op update failed: %v", err)
	}
	if unchanged.Document != doc || unchanged.Language != "go" || unchanged.Name != "Partial" {
		t.Errorf("No-op update changed state: %+v", unchanged)
	}
}

func TestSetDocumentAndLanguage(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	session, _ := manager.CreateSession(ctx, "Hub", "javascript")

	if _, err := manager.SetDocument(ctx, session.ID, "X"); err != nil {
		t.Fatalf("SetDocument failed: %v", err)
	}
	if _, err := manager.SetLanguage(ctx, session.ID, "python"); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}

	got, err := manager.Lookup(ctx, session.ID)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.Document != "X" || got.Language != "python" {
		t.Errorf("Expected X/python, got %q/%q", got.Document, got.Language)
	}

	if _, err := manager.SetDocument(ctx, "ghost", "X"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestListParticipants(t *testing.T) {
	manager, registry := newTestManager()
	ctx := context.Background()
	session, _ := manager.CreateSession(ctx, "Room", "go")

	a, b := &stubConn{id: "a"}, &stubConn{id: "b"}
	registry.Join(a, session.ID, time.Now())
	registry.Join(b, session.ID, time.Now())

	users, err := manager.ListParticipants(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListParticipants failed: %v", err)
	}
	if len(users) != 2 || users[0].ConnectionID != "a" || users[1].ConnectionID != "b" {
		t.Errorf("Expected [a b], got %v", users)
	}

	registry.Leave(b)
	users, _ = manager.ListParticipants(ctx, session.ID)
	if len(users) != 1 {
		t.Errorf("Expected 1 participant after leave, got %d", len(users))
	}
}

func TestListParticipants_UnknownSessionIsEmpty(t *testing.T) {
	manager, registry := newTestManager()
	ctx := context.Background()

	registry.Join(&stubConn{id: "lost"}, "ghost", time.Now())

	users, err := manager.ListParticipants(ctx, "ghost")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Errorf("Expected empty list for unknown session, got %v", users)
	}
}

func TestListParticipants_StoreError(t *testing.T) {
	boom := errors.New("store down")
	manager := NewManager(&failingStore{SessionStore: store.NewMemoryStore(), getErr: boom}, websocket.NewRegistry(), zap.NewNop())

	if _, err := manager.ListParticipants(context.Background(), "any"); !errors.Is(err, boom) {
		t.Errorf("Expected store error, got %v", err)
	}
}

func TestShortID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := shortID()
		if len(id) != 8 || strings.Trim(id, "0123456789abcdef") != "" {
			t.Fatalf("Unexpected id format: %q", id)
		}
		seen[id] = true
	}
	if len(seen) < 99 {
		t.Errorf("Expected ids to be unique, got %d distinct of 100", len(seen))
	}
}

func TestManager_ConcurrentUpdatesSerialize(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	session, _ := manager.CreateSession(ctx, "Race", "go")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				manager.SetDocument(ctx, session.ID, "doc")
			} else {
				lang := "python"
				manager.UpdateSession(ctx, session.ID, types.SessionUpdate{Language: &lang})
			}
		}(i)
	}
	wg.Wait()

	got, _ := manager.Lookup(ctx, session.ID)
	if got.Document != "doc" || got.Language != "python" {
		t.Errorf("Lost update: %+v", got)
	}
}
