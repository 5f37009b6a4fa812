package store

import "testing"

func TestGetContextMissing(t *testing.T) {
	db := testDB(t)

	c, err := db.GetContext("conv-1", "alice")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if c != nil {
		t.Error("expected nil for unknown conversation")
	}
}

func TestSaveContextRoundTrip(t *testing.T) {
	db := testDB(t)

	c := &ConversationContext{
		ConversationID:   "conv-1",
		Owner:            "alice",
		CurrentTopic:     "music",
		UserMood:         "happy",
		ConversationFlow: []string{"greeting", "music"},
		ActiveRefs:       []string{"mem-1"},
	}
	if err := db.SaveContext(c); err != nil {
		t.Fatalf("SaveContext: %v", err)
	}

	found, err := db.GetContext("conv-1", "alice")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if found == nil {
		t.Fatal("expected context, got nil")
	}
	if found.CurrentTopic != "music" || found.UserMood != "happy" {
		t.Errorf("topic/mood = %q/%q", found.CurrentTopic, found.UserMood)
	}
	if len(found.ConversationFlow) != 2 || found.ConversationFlow[1] != "music" {
		t.Errorf("flow = %v", found.ConversationFlow)
	}
	if len(found.ActiveRefs) != 1 || found.ActiveRefs[0] != "mem-1" {
		t.Errorf("refs = %v", found.ActiveRefs)
	}
}

func TestSaveContextUpsert(t *testing.T) {
	db := testDB(t)

	c := &ConversationContext{ConversationID: "conv-1", Owner: "alice", CurrentTopic: "music"}
	db.SaveContext(c)

	c.CurrentTopic = "travel"
	c.ConversationFlow = append(c.ConversationFlow, "travel")
	if err := db.SaveContext(c); err != nil {
		t.Fatalf("second SaveContext: %v", err)
	}

	found, _ := db.GetContext("conv-1", "alice")
	if found.CurrentTopic != "travel" {
		t.Errorf("topic = %q, want travel", found.CurrentTopic)
	}
}

func TestSaveContextOwnerScopedWrites(t *testing.T) {
	db := testDB(t)

	db.SaveContext(&ConversationContext{
		ConversationID: "conv-1", Owner: "alice",
		CurrentTopic: "music", UserMood: "happy",
		ActiveRefs: []string{"mem-a"},
	})
	// Same conversation id, different owner: an independent context, never an
	// overwrite of alice's row.
	if err := db.SaveContext(&ConversationContext{
		ConversationID: "conv-1", Owner: "bob",
		CurrentTopic: "budgeting", UserMood: "stressed",
		ActiveRefs: []string{"mem-z"},
	}); err != nil {
		t.Fatalf("SaveContext for bob: %v", err)
	}

	alice, err := db.GetContext("conv-1", "alice")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if alice.CurrentTopic != "music" || alice.UserMood != "happy" {
		t.Errorf("alice's context = %q/%q, clobbered by bob's write", alice.CurrentTopic, alice.UserMood)
	}
	if len(alice.ActiveRefs) != 1 || alice.ActiveRefs[0] != "mem-a" {
		t.Errorf("alice's refs = %v, want mem-a only", alice.ActiveRefs)
	}

	bob, err := db.GetContext("conv-1", "bob")
	if err != nil {
		t.Fatalf("GetContext for bob: %v", err)
	}
	if bob == nil || bob.CurrentTopic != "budgeting" {
		t.Error("bob's context must exist independently")
	}
}

func TestGetContextOwnerIsolation(t *testing.T) {
	db := testDB(t)

	db.SaveContext(&ConversationContext{ConversationID: "conv-1", Owner: "alice", CurrentTopic: "music"})

	found, err := db.GetContext("conv-1", "bob")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if found != nil {
		t.Error("expected nil for cross-owner conversation lookup")
	}
}
