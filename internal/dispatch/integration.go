package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"aide/internal/aideerrors"
	"aide/internal/httpclient"
	"aide/internal/logging"
	"aide/internal/store"
)

// IntegrationExecutor runs tool calls that address registered external
// endpoints. A tool call targets an integration when the trailing
// underscore-separated token of its function name matches an integration id.
type IntegrationExecutor struct {
	integrations store.IntegrationRepo
	credentials  store.CredentialRepo
	client       *http.Client
	maxBody      int64
	logger       logging.Logger
}

// NewIntegrationExecutor wires the executor over its stores.
func NewIntegrationExecutor(integrations store.IntegrationRepo, credentials store.CredentialRepo, client *http.Client, maxBody int64, logger logging.Logger) *IntegrationExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &IntegrationExecutor{
		integrations: integrations,
		credentials:  credentials,
		client:       client,
		maxBody:      maxBody,
		logger:       logging.OrNop(logger),
	}
}

// Resolve checks whether the function name addresses a registered
// integration. The candidate id is the trailing underscore token.
func (e *IntegrationExecutor) Resolve(ctx context.Context, functionName string) (store.Integration, bool) {
	idx := strings.LastIndex(functionName, "_")
	if idx < 0 || idx == len(functionName)-1 {
		return store.Integration{}, false
	}
	candidate := functionName[idx+1:]
	integration, err := e.integrations.FindByID(ctx, candidate)
	if err != nil {
		if !aideerrors.IsNotFound(err) {
			e.logger.Warn("integration lookup %s: %v", candidate, err)
		}
		return store.Integration{}, false
	}
	return integration, true
}

// Execute performs the integration's HTTP action with the caller's stored
// credentials. Header values may reference credential keys as {{key}}.
func (e *IntegrationExecutor) Execute(ctx context.Context, userID string, integration store.Integration, arguments string) (string, error) {
	cred, err := e.credentials.Find(ctx, userID, integration.ID)
	if err != nil {
		if aideerrors.IsNotFound(err) {
			return "", fmt.Errorf("no credentials for integration %s", integration.ID)
		}
		return "", fmt.Errorf("load credentials for %s: %w", integration.ID, err)
	}

	method := integration.Method
	if method == "" {
		method = http.MethodPost
	}
	var body *strings.Reader
	if method == http.MethodGet {
		body = strings.NewReader("")
	} else {
		body = strings.NewReader(arguments)
	}
	req, err := http.NewRequestWithContext(ctx, method, integration.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", integration.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range integration.Headers {
		req.Header.Set(name, expandCredentials(value, cred.Values))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call integration %s: %w", integration.ID, err)
	}
	defer resp.Body.Close()

	payload, err := httpclient.ReadBounded(resp.Body, e.maxBody)
	if err != nil {
		return "", fmt.Errorf("read integration %s response: %w", integration.ID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &aideerrors.RemoteError{
			Op:         "integration " + integration.ID,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(payload)),
		}
	}
	return string(payload), nil
}

func expandCredentials(template string, values map[string]string) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	out := template
	for key, value := range values {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}
