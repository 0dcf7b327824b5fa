package models

import "testing"

func TestDirectConversationID_Commutative(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{"simple ids", "alice-id", "bob-id"},
		{"uuid-like ids", "0d9f2a61-84a2-4a3e-a7a1-1d2c3b4a5f60", "f0e1d2c3-b4a5-4f60-9d8c-7b6a5f4e3d2c"},
		{"prefix of each other", "user", "user1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab := DirectConversationID(tt.a, tt.b)
			ba := DirectConversationID(tt.b, tt.a)
			if ab != ba {
				t.Errorf("DirectConversationID(%q,%q) = %q, reversed = %q", tt.a, tt.b, ab, ba)
			}
		})
	}
}

func TestDirectConversationID_Deterministic(t *testing.T) {
	got := DirectConversationID("b-user", "a-user")
	want := "a-user:b-user"
	if got != want {
		t.Errorf("DirectConversationID() = %q, want %q", got, want)
	}
}

func TestGroupConversationID(t *testing.T) {
	got := GroupConversationID("g1")
	if got != "group:g1" {
		t.Errorf("GroupConversationID() = %q, want group:g1", got)
	}
	if !IsGroupConversation(got) {
		t.Errorf("IsGroupConversation(%q) = false, want true", got)
	}
	if IsGroupConversation(DirectConversationID("a", "b")) {
		t.Error("IsGroupConversation() = true for a direct conversation id")
	}
}
