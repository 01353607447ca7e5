// Package store persists the service's local records: users, assistant
// registrations, thread bookkeeping, user-defined function sources,
// integration endpoints with per-user credentials, and usage entries.
// Postgres adapters back production; memory adapters back tests.
package store

import (
	"context"
	"time"

	"aide/internal/assistants"
	"aide/internal/usage"
)

// FunctionCallingMode selects how an assistant's tool calls resolve.
type FunctionCallingMode string

const (
	// ModeDefault resolves tool calls against the static registry.
	ModeDefault FunctionCallingMode = "default"
	// ModeCustom resolves tool calls against the user's compiled
	// function definitions before falling back to the static registry.
	ModeCustom FunctionCallingMode = "custom"
)

// User is a registered account. MaxTokens of zero means no quota is
// configured; UsedTokens accumulates estimated usage across runs.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Active       bool
	MaxTokens    int64
	UsedTokens   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Assistant links a local registration to a remote assistant.
type Assistant struct {
	ID                  string
	UserID              string
	RemoteID            string
	Name                string
	Model               string
	Provider            usage.Provider
	FunctionCallingMode FunctionCallingMode
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Thread is the local record of a remote conversation thread.
type Thread struct {
	ID          string
	UserID      string
	AssistantID string
	RemoteID    string
	Title       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FunctionDefinition is a user-authored tool body compiled at dispatch time.
type FunctionDefinition struct {
	ID         string
	UserID     string
	Name       string
	Source     string
	Parameters assistants.ParameterSchema
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Integration describes an external HTTP action addressable from tool calls.
// Tool call names reference it by their trailing underscore-separated token.
type Integration struct {
	ID        string
	Name      string
	Endpoint  string
	Method    string
	Headers   map[string]string
	CreatedAt time.Time
}

// Credential holds a user's secrets for one integration.
type Credential struct {
	UserID        string
	IntegrationID string
	Values        map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserRepo stores accounts.
type UserRepo interface {
	Create(ctx context.Context, user User) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	// AddTokenUsage adds tokens to the user's running total.
	AddTokenUsage(ctx context.Context, userID string, tokens int64) error
}

// AssistantRepo stores assistant registrations.
type AssistantRepo interface {
	Create(ctx context.Context, assistant Assistant) (Assistant, error)
	Update(ctx context.Context, assistant Assistant) (Assistant, error)
	FindByID(ctx context.Context, id string) (Assistant, error)
	FindByRemoteID(ctx context.Context, remoteID string) (Assistant, error)
	ListByUser(ctx context.Context, userID string) ([]Assistant, error)
	Delete(ctx context.Context, id string) error
}

// ThreadRepo stores thread bookkeeping.
type ThreadRepo interface {
	Create(ctx context.Context, thread Thread) (Thread, error)
	FindByRemoteID(ctx context.Context, remoteID string) (Thread, error)
	ListByUser(ctx context.Context, userID, assistantID string) ([]Thread, error)
	Delete(ctx context.Context, id string) error
}

// FunctionRepo stores user-defined function sources.
type FunctionRepo interface {
	Create(ctx context.Context, def FunctionDefinition) (FunctionDefinition, error)
	Update(ctx context.Context, def FunctionDefinition) (FunctionDefinition, error)
	Find(ctx context.Context, id string) (FunctionDefinition, error)
	FindByName(ctx context.Context, userID, name string) (FunctionDefinition, error)
	ListByUser(ctx context.Context, userID string) ([]FunctionDefinition, error)
	Delete(ctx context.Context, id string) error
}

// IntegrationRepo stores integration endpoint records.
type IntegrationRepo interface {
	Upsert(ctx context.Context, integration Integration) error
	FindByID(ctx context.Context, id string) (Integration, error)
	List(ctx context.Context) ([]Integration, error)
}

// CredentialRepo stores per-user integration secrets.
type CredentialRepo interface {
	Put(ctx context.Context, cred Credential) error
	Find(ctx context.Context, userID, integrationID string) (Credential, error)
}

// UsageRepo records usage estimates.
type UsageRepo interface {
	Insert(ctx context.Context, rec usage.Record) error
	ListByUser(ctx context.Context, userID string, limit int) ([]usage.Record, error)
}
