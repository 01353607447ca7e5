package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"aide/internal/aideerrors"
	"aide/internal/usage"
)

// MemoryStores bundles in-memory repositories sharing one lock. Used by
// tests and by local runs without a database.
type MemoryStores struct {
	mu           sync.RWMutex
	users        map[string]User
	assistants   map[string]Assistant
	threads      map[string]Thread
	functions    map[string]FunctionDefinition
	integrations map[string]Integration
	credentials  map[string]Credential
	usageRecords []usage.Record
}

// NewMemoryStores returns an empty in-memory store bundle.
func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		users:        map[string]User{},
		assistants:   map[string]Assistant{},
		threads:      map[string]Thread{},
		functions:    map[string]FunctionDefinition{},
		integrations: map[string]Integration{},
		credentials:  map[string]Credential{},
	}
}

func credentialKey(userID, integrationID string) string {
	return userID + "\x00" + integrationID
}

func (m *MemoryStores) Users() UserRepo               { return (*memoryUserRepo)(m) }
func (m *MemoryStores) Assistants() AssistantRepo     { return (*memoryAssistantRepo)(m) }
func (m *MemoryStores) Threads() ThreadRepo           { return (*memoryThreadRepo)(m) }
func (m *MemoryStores) Functions() FunctionRepo       { return (*memoryFunctionRepo)(m) }
func (m *MemoryStores) Integrations() IntegrationRepo { return (*memoryIntegrationRepo)(m) }
func (m *MemoryStores) Credentials() CredentialRepo   { return (*memoryCredentialRepo)(m) }
func (m *MemoryStores) Usage() UsageRepo              { return (*memoryUsageRepo)(m) }

type memoryUserRepo MemoryStores

func (m *memoryUserRepo) Create(_ context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return User{}, &aideerrors.ConflictError{Resource: "user", Name: user.Email}
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryUserRepo) FindByID(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return User{}, &aideerrors.NotFoundError{Resource: "user", Key: id}
	}
	return user, nil
}

func (m *memoryUserRepo) FindByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, &aideerrors.NotFoundError{Resource: "user", Key: email}
}

func (m *memoryUserRepo) AddTokenUsage(_ context.Context, userID string, tokens int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return &aideerrors.NotFoundError{Resource: "user", Key: userID}
	}
	user.UsedTokens += tokens
	user.UpdatedAt = time.Now().UTC()
	m.users[userID] = user
	return nil
}

type memoryAssistantRepo MemoryStores

func (m *memoryAssistantRepo) Create(_ context.Context, assistant Assistant) (Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assistants {
		if existing.UserID == assistant.UserID && existing.Name == assistant.Name {
			return Assistant{}, &aideerrors.ConflictError{Resource: "assistant", Name: assistant.Name}
		}
	}
	if assistant.CreatedAt.IsZero() {
		assistant.CreatedAt = time.Now().UTC()
	}
	assistant.UpdatedAt = assistant.CreatedAt
	m.assistants[assistant.ID] = assistant
	return assistant, nil
}

func (m *memoryAssistantRepo) Update(_ context.Context, assistant Assistant) (Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.assistants[assistant.ID]
	if !ok {
		return Assistant{}, &aideerrors.NotFoundError{Resource: "assistant", Key: assistant.ID}
	}
	for id, other := range m.assistants {
		if id != assistant.ID && other.UserID == existing.UserID && other.Name == assistant.Name {
			return Assistant{}, &aideerrors.ConflictError{Resource: "assistant", Name: assistant.Name}
		}
	}
	existing.Name = assistant.Name
	existing.Model = assistant.Model
	existing.Provider = assistant.Provider
	existing.FunctionCallingMode = assistant.FunctionCallingMode
	existing.UpdatedAt = time.Now().UTC()
	m.assistants[assistant.ID] = existing
	return existing, nil
}

func (m *memoryAssistantRepo) FindByID(_ context.Context, id string) (Assistant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	assistant, ok := m.assistants[id]
	if !ok {
		return Assistant{}, &aideerrors.NotFoundError{Resource: "assistant", Key: id}
	}
	return assistant, nil
}

func (m *memoryAssistantRepo) FindByRemoteID(_ context.Context, remoteID string) (Assistant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, assistant := range m.assistants {
		if assistant.RemoteID == remoteID {
			return assistant, nil
		}
	}
	return Assistant{}, &aideerrors.NotFoundError{Resource: "assistant", Key: remoteID}
}

func (m *memoryAssistantRepo) ListByUser(_ context.Context, userID string) ([]Assistant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Assistant
	for _, assistant := range m.assistants {
		if assistant.UserID == userID {
			out = append(out, assistant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryAssistantRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assistants[id]; !ok {
		return &aideerrors.NotFoundError{Resource: "assistant", Key: id}
	}
	delete(m.assistants, id)
	return nil
}

type memoryThreadRepo MemoryStores

func (m *memoryThreadRepo) Create(_ context.Context, thread Thread) (Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}
	thread.UpdatedAt = thread.CreatedAt
	m.threads[thread.ID] = thread
	return thread, nil
}

func (m *memoryThreadRepo) FindByRemoteID(_ context.Context, remoteID string) (Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, thread := range m.threads {
		if thread.RemoteID == remoteID {
			return thread, nil
		}
	}
	return Thread{}, &aideerrors.NotFoundError{Resource: "thread", Key: remoteID}
}

func (m *memoryThreadRepo) ListByUser(_ context.Context, userID, assistantID string) ([]Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Thread
	for _, thread := range m.threads {
		if thread.UserID != userID {
			continue
		}
		if assistantID != "" && thread.AssistantID != assistantID {
			continue
		}
		out = append(out, thread)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memoryThreadRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threads[id]; !ok {
		return &aideerrors.NotFoundError{Resource: "thread", Key: id}
	}
	delete(m.threads, id)
	return nil
}

type memoryFunctionRepo MemoryStores

func (m *memoryFunctionRepo) Create(_ context.Context, def FunctionDefinition) (FunctionDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.functions {
		if existing.UserID == def.UserID && existing.Name == def.Name {
			return FunctionDefinition{}, &aideerrors.ConflictError{Resource: "function", Name: def.Name}
		}
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}
	def.UpdatedAt = def.CreatedAt
	m.functions[def.ID] = def
	return def, nil
}

func (m *memoryFunctionRepo) Update(_ context.Context, def FunctionDefinition) (FunctionDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.functions[def.ID]
	if !ok {
		return FunctionDefinition{}, &aideerrors.NotFoundError{Resource: "function", Key: def.ID}
	}
	existing.Source = def.Source
	existing.Parameters = def.Parameters
	existing.UpdatedAt = time.Now().UTC()
	m.functions[def.ID] = existing
	return existing, nil
}

func (m *memoryFunctionRepo) Find(_ context.Context, id string) (FunctionDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.functions[id]
	if !ok {
		return FunctionDefinition{}, &aideerrors.NotFoundError{Resource: "function", Key: id}
	}
	return def, nil
}

func (m *memoryFunctionRepo) FindByName(_ context.Context, userID, name string) (FunctionDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, def := range m.functions {
		if def.UserID == userID && def.Name == name {
			return def, nil
		}
	}
	return FunctionDefinition{}, &aideerrors.NotFoundError{Resource: "function", Key: name}
}

func (m *memoryFunctionRepo) ListByUser(_ context.Context, userID string) ([]FunctionDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []FunctionDefinition
	for _, def := range m.functions {
		if def.UserID == userID {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryFunctionRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.functions[id]; !ok {
		return &aideerrors.NotFoundError{Resource: "function", Key: id}
	}
	delete(m.functions, id)
	return nil
}

type memoryIntegrationRepo MemoryStores

func (m *memoryIntegrationRepo) Upsert(_ context.Context, integration Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = time.Now().UTC()
	}
	m.integrations[integration.ID] = integration
	return nil
}

func (m *memoryIntegrationRepo) FindByID(_ context.Context, id string) (Integration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	integration, ok := m.integrations[id]
	if !ok {
		return Integration{}, &aideerrors.NotFoundError{Resource: "integration", Key: id}
	}
	return integration, nil
}

func (m *memoryIntegrationRepo) List(_ context.Context) ([]Integration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Integration, 0, len(m.integrations))
	for _, integration := range m.integrations {
		out = append(out, integration)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryCredentialRepo MemoryStores

func (m *memoryCredentialRepo) Put(_ context.Context, cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := credentialKey(cred.UserID, cred.IntegrationID)
	now := time.Now().UTC()
	if existing, ok := m.credentials[key]; ok {
		cred.CreatedAt = existing.CreatedAt
	} else {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	m.credentials[key] = cred
	return nil
}

func (m *memoryCredentialRepo) Find(_ context.Context, userID, integrationID string) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.credentials[credentialKey(userID, integrationID)]
	if !ok {
		return Credential{}, &aideerrors.NotFoundError{Resource: "credential", Key: userID + "/" + integrationID}
	}
	return cred, nil
}

type memoryUsageRepo MemoryStores

func (m *memoryUsageRepo) Insert(_ context.Context, rec usage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.usageRecords = append(m.usageRecords, rec)
	return nil
}

func (m *memoryUsageRepo) ListByUser(_ context.Context, userID string, limit int) ([]usage.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var out []usage.Record
	for i := len(m.usageRecords) - 1; i >= 0 && len(out) < limit; i-- {
		if m.usageRecords[i].UserID == userID {
			out = append(out, m.usageRecords[i])
		}
	}
	return out, nil
}
