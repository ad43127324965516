package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestSession_JSONFieldNames(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := Session{
		ID:        "abc12345",
		Name:      "Interview",
		Language:  "python",
		Document:  "print(1)",
		CreatedAt: created,
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, key := range []string{"id", "name", "language", "document", "createdAt"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Expected key %q in %s", key, string(data))
		}
	}
	if raw["createdAt"] != "2026-01-02T03:04:05Z" {
		t.Errorf("Expected RFC3339 createdAt, got %v", raw["createdAt"])
	}
}

func TestSession_CloneIsIndependent(t *testing.T) {
	original := &Session{ID: "a", Document: "one"}
	clone := original.Clone()
	clone.Document = "two"

	if original.Document != "one" {
		t.Errorf("Clone shares state with original: %q", original.Document)
	}

	var nilSession *Session
	if nilSession.Clone() != nil {
		t.Error("Clone of nil session should be nil")
	}
}

func TestSessionUpdate_Apply(t *testing.T) {
	tests := []struct {
		name     string
		update   SessionUpdate
		wantDoc  string
		wantLang string
		empty    bool
	}{
		{
			name:     "no fields",
			update:   SessionUpdate{},
			wantDoc:  "doc",
			wantLang: "javascript",
			empty:    true,
		},
		{
			name:     "document only",
			update:   SessionUpdate{Document: strPtr("new")},
			wantDoc:  "new",
			wantLang: "javascript",
		},
		{
			name:     "language only",
			update:   SessionUpdate{Language: strPtr("go")},
			wantDoc:  "doc",
			wantLang: "go",
		},
		{
			name:     "empty document is still a write",
			update:   SessionUpdate{Document: strPtr("")},
			wantDoc:  "",
			wantLang: "javascript",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Document: "doc", Language: "javascript"}
			tt.update.Apply(s)

			if s.Document != tt.wantDoc {
				t.Errorf("Expected document %q, got %q", tt.wantDoc, s.Document)
			}
			if s.Language != tt.wantLang {
				t.Errorf("Expected language %q, got %q", tt.wantLang, s.Language)
			}
			if tt.update.IsEmpty() != tt.empty {
				t.Errorf("Expected IsEmpty=%v", tt.empty)
			}
		})
	}
}

func TestSessionUpdate_DecodeDistinguishesAbsentFields(t *testing.T) {
	var u SessionUpdate
	if err := json.Unmarshal([]byte(`{"language":"python"}`), &u); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if u.Document != nil {
		t.Error("Absent document should decode as nil")
	}
	if u.Language == nil || *u.Language != "python" {
		t.Errorf("Expected language python, got %v", u.Language)
	}
}

func TestJoinSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   JoinSession
		wantErr error
	}{
		{name: "valid", event: JoinSession{SessionID: "abc"}, wantErr: nil},
		{name: "missing session", event: JoinSession{}, wantErr: ErrMissingSessionID},
		{name: "too long", event: JoinSession{SessionID: strings.Repeat("x", 65)}, wantErr: ErrSessionIDTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.event.Validate(); err != tt.wantErr {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCodeChange_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   CodeChange
		wantErr error
	}{
		{name: "valid", event: CodeChange{SessionID: "abc", Document: strPtr("x")}, wantErr: nil},
		{name: "empty document allowed", event: CodeChange{SessionID: "abc", Document: strPtr("")}, wantErr: nil},
		{name: "missing document", event: CodeChange{SessionID: "abc"}, wantErr: ErrMissingDocument},
		{name: "missing session", event: CodeChange{Document: strPtr("x")}, wantErr: ErrMissingSessionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.event.Validate(); err != tt.wantErr {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLanguageChange_Validate(t *testing.T) {
	if err := (&LanguageChange{SessionID: "abc", Language: "go"}).Validate(); err != nil {
		t.Errorf("Expected valid event, got %v", err)
	}
	if err := (&LanguageChange{SessionID: "abc"}).Validate(); err != ErrMissingLanguage {
		t.Errorf("Expected ErrMissingLanguage, got %v", err)
	}
	if err := (&LanguageChange{Language: "go"}).Validate(); err != ErrMissingSessionID {
		t.Errorf("Expected ErrMissingSessionID, got %v", err)
	}
}

func TestCodeUpdate_OmitsOriginOnInitialPush(t *testing.T) {
	data, err := json.Marshal(Frame{Type: EventCodeUpdate, Data: CodeUpdate{Document: "x"}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), "originConnectionId") {
		t.Errorf("Initial push should omit originConnectionId: %s", string(data))
	}
}
