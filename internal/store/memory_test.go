package store

import (
	"context"
	"testing"

	"aide/internal/aideerrors"
)

func TestMemoryUserRepoDuplicateEmail(t *testing.T) {
	stores := NewMemoryStores()
	ctx := context.Background()

	if _, err := stores.Users().Create(ctx, User{ID: "u1", Email: "a@example.com", Active: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := stores.Users().Create(ctx, User{ID: "u2", Email: "a@example.com", Active: true})
	if !aideerrors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMemoryAssistantRepoNameConflictPerUser(t *testing.T) {
	stores := NewMemoryStores()
	ctx := context.Background()

	if _, err := stores.Assistants().Create(ctx, Assistant{ID: "a1", UserID: "u1", Name: "helper"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := stores.Assistants().Create(ctx, Assistant{ID: "a2", UserID: "u1", Name: "helper"}); !aideerrors.IsConflict(err) {
		t.Fatalf("expected conflict for same user, got %v", err)
	}
	if _, err := stores.Assistants().Create(ctx, Assistant{ID: "a3", UserID: "u2", Name: "helper"}); err != nil {
		t.Fatalf("different user should not conflict: %v", err)
	}
}

func TestMemoryAssistantRepoFindByRemoteID(t *testing.T) {
	stores := NewMemoryStores()
	ctx := context.Background()

	created, err := stores.Assistants().Create(ctx, Assistant{ID: "a1", UserID: "u1", RemoteID: "asst_1", Name: "helper"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	found, err := stores.Assistants().FindByRemoteID(ctx, "asst_1")
	if err != nil {
		t.Fatalf("FindByRemoteID: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("FindByRemoteID = %q, want %q", found.ID, created.ID)
	}
	if _, err := stores.Assistants().FindByRemoteID(ctx, "asst_missing"); !aideerrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryThreadRepoListFiltersByAssistant(t *testing.T) {
	stores := NewMemoryStores()
	ctx := context.Background()

	threads := stores.Threads()
	for _, th := range []Thread{
		{ID: "t1", UserID: "u1", AssistantID: "a1", RemoteID: "thread_1"},
		{ID: "t2", UserID: "u1", AssistantID: "a2", RemoteID: "thread_2"},
		{ID: "t3", UserID: "u2", AssistantID: "a1", RemoteID: "thread_3"},
	} {
		if _, err := threads.Create(ctx, th); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	got, err := threads.ListByUser(ctx, "u1", "a1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("ListByUser = %+v", got)
	}
	all, err := threads.ListByUser(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListByUser all = %+v", all)
	}
}

func TestMemoryCredentialRepoRoundTrip(t *testing.T) {
	stores := NewMemoryStores()
	ctx := context.Background()

	if _, err := stores.Credentials().Find(ctx, "u1", "slack"); !aideerrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := stores.Credentials().Put(ctx, Credential{UserID: "u1", IntegrationID: "slack", Values: map[string]string{"token": "xoxb"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	cred, err := stores.Credentials().Find(ctx, "u1", "slack")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if cred.Values["token"] != "xoxb" {
		t.Fatalf("Find values = %+v", cred.Values)
	}
}

func TestMemoryFunctionRepoFindByName(t *testing.T) {
	stores := NewMemoryStores()
	ctx := context.Background()

	if _, err := stores.Functions().Create(ctx, FunctionDefinition{ID: "f1", UserID: "u1", Name: "lookup_weather", Source: "return args"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	def, err := stores.Functions().FindByName(ctx, "u1", "lookup_weather")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if def.ID != "f1" {
		t.Fatalf("FindByName = %+v", def)
	}
	if _, err := stores.Functions().FindByName(ctx, "u2", "lookup_weather"); !aideerrors.IsNotFound(err) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}

func TestMemoryUserRepoAddTokenUsage(t *testing.T) {
	stores := NewMemoryStores()
	ctx := context.Background()

	if _, err := stores.Users().Create(ctx, User{ID: "u1", Email: "a@b.c", PasswordHash: "x", Active: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := stores.Users().AddTokenUsage(ctx, "u1", 120); err != nil {
		t.Fatalf("AddTokenUsage: %v", err)
	}
	if err := stores.Users().AddTokenUsage(ctx, "u1", 30); err != nil {
		t.Fatalf("AddTokenUsage: %v", err)
	}
	user, err := stores.Users().FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if user.UsedTokens != 150 {
		t.Fatalf("UsedTokens = %d", user.UsedTokens)
	}
	if err := stores.Users().AddTokenUsage(ctx, "missing", 1); !aideerrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
