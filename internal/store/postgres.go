package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"aide/internal/aideerrors"
	"aide/internal/assistants"
	"aide/internal/usage"
)

const pgUniqueViolation = "23505"

// Connect opens a pgx pool against the given database URL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS aide_users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    max_tokens BIGINT NOT NULL DEFAULT 0,
    used_tokens BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS aide_assistants (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES aide_users(id) ON DELETE CASCADE,
    remote_id TEXT NOT NULL,
    name TEXT NOT NULL,
    model TEXT NOT NULL,
    provider TEXT NOT NULL DEFAULT 'openai',
    function_calling_mode TEXT NOT NULL DEFAULT 'default',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, name)
);

CREATE TABLE IF NOT EXISTS aide_threads (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES aide_users(id) ON DELETE CASCADE,
    assistant_id TEXT NOT NULL,
    remote_id TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS aide_functions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES aide_users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    source TEXT NOT NULL,
    parameters JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, name)
);

CREATE TABLE IF NOT EXISTS aide_integrations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    method TEXT NOT NULL DEFAULT 'POST',
    headers JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS aide_credentials (
    user_id TEXT NOT NULL REFERENCES aide_users(id) ON DELETE CASCADE,
    integration_id TEXT NOT NULL REFERENCES aide_integrations(id) ON DELETE CASCADE,
    secrets JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, integration_id)
);

CREATE TABLE IF NOT EXISTS aide_usage (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL DEFAULT '',
    assistant_id TEXT NOT NULL DEFAULT '',
    thread_id TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL,
    provider TEXT NOT NULL,
    input_tokens INTEGER NOT NULL,
    output_tokens INTEGER NOT NULL,
    total_tokens INTEGER NOT NULL,
    cost DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS aide_usage_user_idx ON aide_usage (user_id, created_at DESC);
`

// Migrate applies the schema. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

type PostgresAssistantRepo struct {
	pool *pgxpool.Pool
}

type PostgresThreadRepo struct {
	pool *pgxpool.Pool
}

type PostgresFunctionRepo struct {
	pool *pgxpool.Pool
}

type PostgresIntegrationRepo struct {
	pool *pgxpool.Pool
}

type PostgresCredentialRepo struct {
	pool *pgxpool.Pool
}

type PostgresUsageRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresStores returns every repository backed by the shared pool.
func NewPostgresStores(pool *pgxpool.Pool) (*PostgresUserRepo, *PostgresAssistantRepo, *PostgresThreadRepo, *PostgresFunctionRepo, *PostgresIntegrationRepo, *PostgresCredentialRepo, *PostgresUsageRepo) {
	return &PostgresUserRepo{pool: pool},
		&PostgresAssistantRepo{pool: pool},
		&PostgresThreadRepo{pool: pool},
		&PostgresFunctionRepo{pool: pool},
		&PostgresIntegrationRepo{pool: pool},
		&PostgresCredentialRepo{pool: pool},
		&PostgresUsageRepo{pool: pool}
}

func (r *PostgresUserRepo) Create(ctx context.Context, user User) (User, error) {
	query := `
INSERT INTO aide_users (id, email, name, password_hash, active, max_tokens, used_tokens, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING id, email, name, password_hash, active, max_tokens, used_tokens, created_at, updated_at
`
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	var created User
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Active,
		user.MaxTokens,
		user.UsedTokens,
		user.CreatedAt,
	).Scan(
		&created.ID,
		&created.Email,
		&created.Name,
		&created.PasswordHash,
		&created.Active,
		&created.MaxTokens,
		&created.UsedTokens,
		&created.CreatedAt,
		&created.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, &aideerrors.ConflictError{Resource: "user", Name: user.Email}
		}
		return User{}, err
	}
	return created, nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (User, error) {
	return r.findUser(ctx, `WHERE id = $1`, id)
}

func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findUser(ctx, `WHERE email = $1`, email)
}

func (r *PostgresUserRepo) findUser(ctx context.Context, where string, arg any) (User, error) {
	query := `
SELECT id, email, name, password_hash, active, max_tokens, used_tokens, created_at, updated_at
FROM aide_users
` + where
	var user User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Active,
		&user.MaxTokens,
		&user.UsedTokens,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, &aideerrors.NotFoundError{Resource: "user", Key: fmt.Sprint(arg)}
		}
		return User{}, err
	}
	return user, nil
}

func (r *PostgresUserRepo) AddTokenUsage(ctx context.Context, userID string, tokens int64) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE aide_users SET used_tokens = used_tokens + $2, updated_at = NOW() WHERE id = $1
`, userID, tokens)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &aideerrors.NotFoundError{Resource: "user", Key: userID}
	}
	return nil
}

func (r *PostgresAssistantRepo) Create(ctx context.Context, assistant Assistant) (Assistant, error) {
	query := `
INSERT INTO aide_assistants (id, user_id, remote_id, name, model, provider, function_calling_mode, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING id, user_id, remote_id, name, model, provider, function_calling_mode, created_at, updated_at
`
	if assistant.CreatedAt.IsZero() {
		assistant.CreatedAt = time.Now().UTC()
	}
	created, err := scanAssistant(r.pool.QueryRow(ctx, query,
		assistant.ID,
		assistant.UserID,
		assistant.RemoteID,
		assistant.Name,
		assistant.Model,
		string(assistant.Provider),
		string(assistant.FunctionCallingMode),
		assistant.CreatedAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Assistant{}, &aideerrors.ConflictError{Resource: "assistant", Name: assistant.Name}
		}
		return Assistant{}, err
	}
	return created, nil
}

func (r *PostgresAssistantRepo) Update(ctx context.Context, assistant Assistant) (Assistant, error) {
	query := `
UPDATE aide_assistants
SET name = $2,
    model = $3,
    provider = $4,
    function_calling_mode = $5,
    updated_at = $6
WHERE id = $1
RETURNING id, user_id, remote_id, name, model, provider, function_calling_mode, created_at, updated_at
`
	updated, err := scanAssistant(r.pool.QueryRow(ctx, query,
		assistant.ID,
		assistant.Name,
		assistant.Model,
		string(assistant.Provider),
		string(assistant.FunctionCallingMode),
		time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assistant{}, &aideerrors.NotFoundError{Resource: "assistant", Key: assistant.ID}
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Assistant{}, &aideerrors.ConflictError{Resource: "assistant", Name: assistant.Name}
		}
		return Assistant{}, err
	}
	return updated, nil
}

func (r *PostgresAssistantRepo) FindByID(ctx context.Context, id string) (Assistant, error) {
	return r.find(ctx, `WHERE id = $1`, id)
}

func (r *PostgresAssistantRepo) FindByRemoteID(ctx context.Context, remoteID string) (Assistant, error) {
	return r.find(ctx, `WHERE remote_id = $1`, remoteID)
}

func (r *PostgresAssistantRepo) find(ctx context.Context, where string, arg any) (Assistant, error) {
	query := `
SELECT id, user_id, remote_id, name, model, provider, function_calling_mode, created_at, updated_at
FROM aide_assistants
` + where
	assistant, err := scanAssistant(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assistant{}, &aideerrors.NotFoundError{Resource: "assistant", Key: fmt.Sprint(arg)}
		}
		return Assistant{}, err
	}
	return assistant, nil
}

func (r *PostgresAssistantRepo) ListByUser(ctx context.Context, userID string) ([]Assistant, error) {
	query := `
SELECT id, user_id, remote_id, name, model, provider, function_calling_mode, created_at, updated_at
FROM aide_assistants
WHERE user_id = $1
ORDER BY created_at DESC
`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assistants []Assistant
	for rows.Next() {
		assistant, err := scanAssistant(rows)
		if err != nil {
			return nil, err
		}
		assistants = append(assistants, assistant)
	}
	return assistants, rows.Err()
}

func (r *PostgresAssistantRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM aide_assistants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &aideerrors.NotFoundError{Resource: "assistant", Key: id}
	}
	return nil
}

func (r *PostgresThreadRepo) Create(ctx context.Context, thread Thread) (Thread, error) {
	query := `
INSERT INTO aide_threads (id, user_id, assistant_id, remote_id, title, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
RETURNING id, user_id, assistant_id, remote_id, title, created_at, updated_at
`
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}
	var created Thread
	err := r.pool.QueryRow(ctx, query,
		thread.ID,
		thread.UserID,
		thread.AssistantID,
		thread.RemoteID,
		thread.Title,
		thread.CreatedAt,
	).Scan(
		&created.ID,
		&created.UserID,
		&created.AssistantID,
		&created.RemoteID,
		&created.Title,
		&created.CreatedAt,
		&created.UpdatedAt,
	)
	if err != nil {
		return Thread{}, err
	}
	return created, nil
}

func (r *PostgresThreadRepo) FindByRemoteID(ctx context.Context, remoteID string) (Thread, error) {
	query := `
SELECT id, user_id, assistant_id, remote_id, title, created_at, updated_at
FROM aide_threads
WHERE remote_id = $1
`
	var thread Thread
	err := r.pool.QueryRow(ctx, query, remoteID).Scan(
		&thread.ID,
		&thread.UserID,
		&thread.AssistantID,
		&thread.RemoteID,
		&thread.Title,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Thread{}, &aideerrors.NotFoundError{Resource: "thread", Key: remoteID}
		}
		return Thread{}, err
	}
	return thread, nil
}

func (r *PostgresThreadRepo) ListByUser(ctx context.Context, userID, assistantID string) ([]Thread, error) {
	query := `
SELECT id, user_id, assistant_id, remote_id, title, created_at, updated_at
FROM aide_threads
WHERE user_id = $1
`
	args := []any{userID}
	if assistantID != "" {
		query += ` AND assistant_id = $2`
		args = append(args, assistantID)
	}
	query += ` ORDER BY updated_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var threads []Thread
	for rows.Next() {
		var thread Thread
		if err := rows.Scan(
			&thread.ID,
			&thread.UserID,
			&thread.AssistantID,
			&thread.RemoteID,
			&thread.Title,
			&thread.CreatedAt,
			&thread.UpdatedAt,
		); err != nil {
			return nil, err
		}
		threads = append(threads, thread)
	}
	return threads, rows.Err()
}

func (r *PostgresThreadRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM aide_threads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &aideerrors.NotFoundError{Resource: "thread", Key: id}
	}
	return nil
}

func (r *PostgresFunctionRepo) Create(ctx context.Context, def FunctionDefinition) (FunctionDefinition, error) {
	params, err := json.Marshal(def.Parameters)
	if err != nil {
		return FunctionDefinition{}, err
	}
	query := `
INSERT INTO aide_functions (id, user_id, name, source, parameters, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
RETURNING id, user_id, name, source, parameters, created_at, updated_at
`
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}
	created, err := scanFunction(r.pool.QueryRow(ctx, query,
		def.ID,
		def.UserID,
		def.Name,
		def.Source,
		params,
		def.CreatedAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return FunctionDefinition{}, &aideerrors.ConflictError{Resource: "function", Name: def.Name}
		}
		return FunctionDefinition{}, err
	}
	return created, nil
}

func (r *PostgresFunctionRepo) Update(ctx context.Context, def FunctionDefinition) (FunctionDefinition, error) {
	params, err := json.Marshal(def.Parameters)
	if err != nil {
		return FunctionDefinition{}, err
	}
	query := `
UPDATE aide_functions
SET source = $2,
    parameters = $3,
    updated_at = $4
WHERE id = $1
RETURNING id, user_id, name, source, parameters, created_at, updated_at
`
	updated, err := scanFunction(r.pool.QueryRow(ctx, query, def.ID, def.Source, params, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FunctionDefinition{}, &aideerrors.NotFoundError{Resource: "function", Key: def.ID}
		}
		return FunctionDefinition{}, err
	}
	return updated, nil
}

func (r *PostgresFunctionRepo) Find(ctx context.Context, id string) (FunctionDefinition, error) {
	query := `
SELECT id, user_id, name, source, parameters, created_at, updated_at
FROM aide_functions
WHERE id = $1
`
	def, err := scanFunction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FunctionDefinition{}, &aideerrors.NotFoundError{Resource: "function", Key: id}
		}
		return FunctionDefinition{}, err
	}
	return def, nil
}

func (r *PostgresFunctionRepo) FindByName(ctx context.Context, userID, name string) (FunctionDefinition, error) {
	query := `
SELECT id, user_id, name, source, parameters, created_at, updated_at
FROM aide_functions
WHERE user_id = $1 AND name = $2
`
	def, err := scanFunction(r.pool.QueryRow(ctx, query, userID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FunctionDefinition{}, &aideerrors.NotFoundError{Resource: "function", Key: name}
		}
		return FunctionDefinition{}, err
	}
	return def, nil
}

func (r *PostgresFunctionRepo) ListByUser(ctx context.Context, userID string) ([]FunctionDefinition, error) {
	query := `
SELECT id, user_id, name, source, parameters, created_at, updated_at
FROM aide_functions
WHERE user_id = $1
ORDER BY name ASC
`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var defs []FunctionDefinition
	for rows.Next() {
		def, err := scanFunction(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (r *PostgresFunctionRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM aide_functions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &aideerrors.NotFoundError{Resource: "function", Key: id}
	}
	return nil
}

func (r *PostgresIntegrationRepo) Upsert(ctx context.Context, integration Integration) error {
	headers, err := encodeStringMap(integration.Headers)
	if err != nil {
		return err
	}
	query := `
INSERT INTO aide_integrations (id, name, endpoint, method, headers)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    endpoint = EXCLUDED.endpoint,
    method = EXCLUDED.method,
    headers = EXCLUDED.headers
`
	_, err = r.pool.Exec(ctx, query,
		integration.ID,
		integration.Name,
		integration.Endpoint,
		integration.Method,
		headers,
	)
	return err
}

func (r *PostgresIntegrationRepo) FindByID(ctx context.Context, id string) (Integration, error) {
	query := `
SELECT id, name, endpoint, method, headers, created_at
FROM aide_integrations
WHERE id = $1
`
	var integration Integration
	var rawHeaders []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&integration.ID,
		&integration.Name,
		&integration.Endpoint,
		&integration.Method,
		&rawHeaders,
		&integration.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Integration{}, &aideerrors.NotFoundError{Resource: "integration", Key: id}
		}
		return Integration{}, err
	}
	if integration.Headers, err = decodeStringMap(rawHeaders); err != nil {
		return Integration{}, err
	}
	return integration, nil
}

func (r *PostgresIntegrationRepo) List(ctx context.Context) ([]Integration, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, endpoint, method, headers, created_at FROM aide_integrations ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var integrations []Integration
	for rows.Next() {
		var integration Integration
		var rawHeaders []byte
		if err := rows.Scan(
			&integration.ID,
			&integration.Name,
			&integration.Endpoint,
			&integration.Method,
			&rawHeaders,
			&integration.CreatedAt,
		); err != nil {
			return nil, err
		}
		if integration.Headers, err = decodeStringMap(rawHeaders); err != nil {
			return nil, err
		}
		integrations = append(integrations, integration)
	}
	return integrations, rows.Err()
}

func (r *PostgresCredentialRepo) Put(ctx context.Context, cred Credential) error {
	values, err := encodeStringMap(cred.Values)
	if err != nil {
		return err
	}
	query := `
INSERT INTO aide_credentials (user_id, integration_id, secrets, created_at, updated_at)
VALUES ($1, $2, $3, NOW(), NOW())
ON CONFLICT (user_id, integration_id) DO UPDATE SET
    secrets = EXCLUDED.secrets,
    updated_at = NOW()
`
	_, err = r.pool.Exec(ctx, query, cred.UserID, cred.IntegrationID, values)
	return err
}

func (r *PostgresCredentialRepo) Find(ctx context.Context, userID, integrationID string) (Credential, error) {
	query := `
SELECT user_id, integration_id, secrets, created_at, updated_at
FROM aide_credentials
WHERE user_id = $1 AND integration_id = $2
`
	var cred Credential
	var rawValues []byte
	err := r.pool.QueryRow(ctx, query, userID, integrationID).Scan(
		&cred.UserID,
		&cred.IntegrationID,
		&rawValues,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, &aideerrors.NotFoundError{Resource: "credential", Key: userID + "/" + integrationID}
		}
		return Credential{}, err
	}
	if cred.Values, err = decodeStringMap(rawValues); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

func (r *PostgresUsageRepo) Insert(ctx context.Context, rec usage.Record) error {
	query := `
INSERT INTO aide_usage (user_id, assistant_id, thread_id, model, provider, input_tokens, output_tokens, total_tokens, cost, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, query,
		rec.UserID,
		rec.AssistantID,
		rec.ThreadID,
		rec.Model,
		string(rec.Provider),
		rec.InputTokens,
		rec.OutputTokens,
		rec.TotalTokens,
		rec.Cost,
		createdAt,
	)
	return err
}

func (r *PostgresUsageRepo) ListByUser(ctx context.Context, userID string, limit int) ([]usage.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT user_id, assistant_id, thread_id, model, provider, input_tokens, output_tokens, total_tokens, cost, created_at
FROM aide_usage
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []usage.Record
	for rows.Next() {
		var rec usage.Record
		if err := rows.Scan(
			&rec.UserID,
			&rec.AssistantID,
			&rec.ThreadID,
			&rec.Model,
			&rec.Provider,
			&rec.InputTokens,
			&rec.OutputTokens,
			&rec.TotalTokens,
			&rec.Cost,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssistant(row rowScanner) (Assistant, error) {
	var assistant Assistant
	err := row.Scan(
		&assistant.ID,
		&assistant.UserID,
		&assistant.RemoteID,
		&assistant.Name,
		&assistant.Model,
		&assistant.Provider,
		&assistant.FunctionCallingMode,
		&assistant.CreatedAt,
		&assistant.UpdatedAt,
	)
	if err != nil {
		return Assistant{}, err
	}
	return assistant, nil
}

func scanFunction(row rowScanner) (FunctionDefinition, error) {
	var def FunctionDefinition
	var rawParams []byte
	err := row.Scan(
		&def.ID,
		&def.UserID,
		&def.Name,
		&def.Source,
		&rawParams,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return FunctionDefinition{}, err
	}
	if len(rawParams) > 0 {
		var params assistants.ParameterSchema
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return FunctionDefinition{}, err
		}
		def.Parameters = params
	}
	return def, nil
}

func encodeStringMap(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func decodeStringMap(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}
