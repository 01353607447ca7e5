package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	luaparse "github.com/yuin/gopher-lua/parse"

	"aide/internal/assistants"
	"aide/internal/httpclient"
	"aide/internal/logging"
	"aide/internal/store"
)

const (
	invokeTimeout = 5 * time.Second

	// sandboxMaxResponse bounds the body returned to user code by
	// http_request.
	sandboxMaxResponse = 256 << 10
)

// CompiledFunction is a user-defined function body compiled to bytecode.
// The source must be a Lua chunk that returns a function; arguments are
// passed positionally in the declared parameter order.
type CompiledFunction struct {
	Name   string
	Params []string
	proto  *lua.FunctionProto
}

// DynamicRegistry compiles user function definitions once and serves
// invocations from the compiled form. Reload replaces the whole mapping.
type DynamicRegistry struct {
	functions store.FunctionRepo
	logger    logging.Logger

	mu       sync.RWMutex
	compiled map[string]map[string]*CompiledFunction
}

// NewDynamicRegistry builds a registry over the stored definitions.
func NewDynamicRegistry(functions store.FunctionRepo, logger logging.Logger) *DynamicRegistry {
	return &DynamicRegistry{
		functions: functions,
		logger:    logging.OrNop(logger),
		compiled:  map[string]map[string]*CompiledFunction{},
	}
}

// Compile parses and compiles a single definition without registering it.
// Used to validate sources at save time.
func Compile(def store.FunctionDefinition) (*CompiledFunction, error) {
	chunk, err := luaparse.Parse(strings.NewReader(def.Source), def.Name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", def.Name, err)
	}
	proto, err := lua.Compile(chunk, def.Name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", def.Name, err)
	}
	return &CompiledFunction{
		Name:   def.Name,
		Params: paramOrder(def.Parameters),
		proto:  proto,
	}, nil
}

func paramOrder(schema assistants.ParameterSchema) []string {
	return schema.OrderedProperties()
}

// Reload recompiles every definition owned by userID. Definitions that fail
// to compile are skipped and logged; the rest still load.
func (r *DynamicRegistry) Reload(ctx context.Context, userID string) error {
	defs, err := r.functions.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list function definitions: %w", err)
	}
	compiled := make(map[string]*CompiledFunction, len(defs))
	for _, def := range defs {
		fn, err := Compile(def)
		if err != nil {
			r.logger.Warn("skipping function %s for user %s: %v", def.Name, userID, err)
			continue
		}
		compiled[def.Name] = fn
	}
	r.mu.Lock()
	r.compiled[userID] = compiled
	r.mu.Unlock()
	return nil
}

// Lookup returns the compiled function for (userID, name), loading the
// user's definitions on first access.
func (r *DynamicRegistry) Lookup(ctx context.Context, userID, name string) (*CompiledFunction, bool) {
	r.mu.RLock()
	byName, loaded := r.compiled[userID]
	r.mu.RUnlock()
	if !loaded {
		if err := r.Reload(ctx, userID); err != nil {
			r.logger.Warn("loading functions for user %s: %v", userID, err)
			return nil, false
		}
		r.mu.RLock()
		byName = r.compiled[userID]
		r.mu.RUnlock()
	}
	fn, ok := byName[name]
	return fn, ok
}

// Invalidate drops the compiled mapping for a user so the next lookup
// recompiles from storage. Called after definitions change.
func (r *DynamicRegistry) Invalidate(userID string) {
	r.mu.Lock()
	delete(r.compiled, userID)
	r.mu.Unlock()
}

// Invoke runs the compiled function in a fresh sandboxed interpreter with
// arguments extracted positionally from the call's argument object.
func (fn *CompiledFunction) Invoke(ctx context.Context, rawArgs json.RawMessage) (string, error) {
	args := map[string]any{}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return "", fmt.Errorf("decode arguments for %s: %w", fn.Name, err)
		}
	}

	L := newSandbox()
	defer L.Close()

	ctx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()
	L.SetContext(ctx)

	L.Push(L.NewFunctionFromProto(fn.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return "", fmt.Errorf("load %s: %w", fn.Name, err)
	}
	callable, ok := L.Get(-1).(*lua.LFunction)
	if !ok {
		return "", fmt.Errorf("%s: source does not return a function", fn.Name)
	}
	L.Pop(1)

	L.Push(callable)
	for _, param := range fn.Params {
		L.Push(toLua(L, args[param]))
	}
	if err := L.PCall(len(fn.Params), 1, nil); err != nil {
		return "", fmt.Errorf("run %s: %w", fn.Name, err)
	}
	result := L.Get(-1)
	L.Pop(1)
	return fromLua(result)
}

// newSandbox builds an interpreter with only the pure standard libraries
// plus the http_request host call. No io, os, debug, or module loading is
// available to user code.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "print"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("http_request", L.NewFunction(luaHTTPRequest))
	return L
}

var sandboxHTTPClient = httpclient.New(invokeTimeout)

// luaHTTPRequest is the single host call exposed to user functions:
//
//	body, status = http_request(method, url [, payload [, headers]])
//
// On transport failure it returns nil and the error message.
func luaHTTPRequest(L *lua.LState) int {
	method := strings.ToUpper(L.CheckString(1))
	url := L.CheckString(2)

	var payload io.Reader
	if L.GetTop() >= 3 {
		if body := L.OptString(3, ""); body != "" {
			payload = strings.NewReader(body)
		}
	}

	req, err := http.NewRequestWithContext(L.Context(), method, url, payload)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if L.GetTop() >= 4 {
		if headers, ok := L.Get(4).(*lua.LTable); ok {
			headers.ForEach(func(key, value lua.LValue) {
				req.Header.Set(key.String(), value.String())
			})
		}
	}

	resp, err := sandboxHTTPClient.Do(req)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	defer resp.Body.Close()

	data, err := httpclient.ReadBounded(resp.Body, sandboxMaxResponse)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(data))
	L.Push(lua.LNumber(resp.StatusCode))
	return 2
}

func toLua(L *lua.LState, value any) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case float64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case []any:
		tbl := L.NewTable()
		for _, item := range v {
			tbl.Append(toLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for key, item := range v {
			tbl.RawSetString(key, toLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

func fromLua(value lua.LValue) (string, error) {
	switch v := value.(type) {
	case *lua.LNilType:
		return "", nil
	case lua.LString:
		return string(v), nil
	case lua.LNumber:
		return v.String(), nil
	case lua.LBool:
		if v {
			return "true", nil
		}
		return "false", nil
	case *lua.LTable:
		out, err := json.Marshal(tableToGo(v))
		if err != nil {
			return "", fmt.Errorf("encode result table: %w", err)
		}
		return string(out), nil
	default:
		return value.String(), nil
	}
}

func tableToGo(tbl *lua.LTable) any {
	length := tbl.Len()
	if length > 0 {
		arr := make([]any, 0, length)
		for i := 1; i <= length; i++ {
			arr = append(arr, luaToGo(tbl.RawGetInt(i)))
		}
		return arr
	}
	obj := map[string]any{}
	tbl.ForEach(func(key, value lua.LValue) {
		obj[key.String()] = luaToGo(value)
	})
	return obj
}

func luaToGo(value lua.LValue) any {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return float64(v)
	case lua.LBool:
		return bool(v)
	case *lua.LTable:
		return tableToGo(v)
	default:
		return value.String()
	}
}
