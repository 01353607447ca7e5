package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aide/internal/assistants"
	"aide/internal/store"
)

func TestCompileRejectsBadSource(t *testing.T) {
	_, err := Compile(store.FunctionDefinition{Name: "bad", Source: "return function( broken"})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestInvokeTableResultEncodedAsJSON(t *testing.T) {
	fn, err := Compile(store.FunctionDefinition{
		Name:   "pair",
		Source: `return function() return {status = "ok"} end`,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	out, err := fn.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output %q is not JSON: %v", out, err)
	}
	if decoded["status"] != "ok" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestSandboxHasNoFileOrProcessAccess(t *testing.T) {
	fn, err := Compile(store.FunctionDefinition{
		Name:   "echo",
		Source: `return function() if os == nil and io == nil then return "sealed" end return "open" end`,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	out, err := fn.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "sealed" {
		t.Fatalf("sandbox exposes os or io: %q", out)
	}
}

func TestInvokeRuntimeErrorSurfaced(t *testing.T) {
	fn, err := Compile(store.FunctionDefinition{
		Name:   "crash",
		Source: `return function() error("nope") end`,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, err = fn.Invoke(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "crash") {
		t.Fatalf("expected runtime error naming the function, got %v", err)
	}
}

func TestInvokeHTTPRequestHostCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("X-Trace"); got != "1" {
			t.Errorf("X-Trace = %q", got)
		}
		fmt.Fprint(w, "pong")
	}))
	defer srv.Close()

	fn, err := Compile(store.FunctionDefinition{
		Name: "ping",
		Source: `return function(url)
			local body, status = http_request("GET", url, nil, {["X-Trace"] = "1"})
			if body == nil then return "error: " .. status end
			return body .. " " .. status
		end`,
		Parameters: assistants.ParameterSchema{
			Type:          "object",
			Properties:    map[string]assistants.PropertySchema{"url": {Type: "string"}},
			PropertyOrder: []string{"url"},
		},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	out, err := fn.Invoke(context.Background(), args)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "pong 200" {
		t.Fatalf("out = %q", out)
	}
}

func TestReloadSkipsBrokenDefinitions(t *testing.T) {
	stores := store.NewMemoryStores()
	ctx := context.Background()
	for _, def := range []store.FunctionDefinition{
		{ID: "f1", UserID: "u1", Name: "good", Source: `return function() return "yes" end`},
		{ID: "f2", UserID: "u1", Name: "broken", Source: `return function( nope`},
	} {
		if _, err := stores.Functions().Create(ctx, def); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	registry := NewDynamicRegistry(stores.Functions(), nil)
	if err := registry.Reload(ctx, "u1"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, ok := registry.Lookup(ctx, "u1", "good"); !ok {
		t.Fatal("good function should load")
	}
	if _, ok := registry.Lookup(ctx, "u1", "broken"); ok {
		t.Fatal("broken function should be skipped")
	}
}
