package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/util"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type (
	// LuaEnv runs sandboxed Lua scripts as workflow steps, pooling
	// interpreter states between invocations
	LuaEnv struct {
		statePool chan *lua.State
		cache     *util.LRUCache[string, *CompiledLua]
	}

	// CompiledLua is a script compiled to Lua bytecode
	CompiledLua struct {
		bytecode []byte
	}
)

const (
	luaStatePoolSize    = 10
	luaCacheSize        = 256
	luaGlobalTableIndex = -2
	luaArrayTableIndex  = -3
	luaMapTableIndex    = -3
	luaGlobalTableName  = "_G"
	luaSeparator        = "\n"
	luaPrelude          = "local payload = select(1, ...)\n" +
		"local call = select(2, ...)"
	luaArgCount = 2
)

var (
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
	ErrLuaResult    = errors.New("lua script must return a table or nil")
)

var _ Environment = (*LuaEnv)(nil)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// NewLuaEnv creates a Lua execution environment
func NewLuaEnv() *LuaEnv {
	return &LuaEnv{
		statePool: make(chan *lua.State, luaStatePoolSize),
		cache:     util.NewLRUCache[string, *CompiledLua](luaCacheSize),
	}
}

// Step compiles src into a StepFunc. The script sees the current payload
// as the table `payload` and the invocation as the table `call`; the table
// it returns is merged over the payload. Returning nil leaves the payload
// unchanged
func (e *LuaEnv) Step(name api.StepName, src Source) (engine.StepFunc, error) {
	proc, err := e.Compile(src.Script)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", name, err)
	}
	return func(
		_ context.Context, call *engine.Call, payload json.RawMessage,
	) (json.RawMessage, error) {
		var in map[string]any
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, engine.Validation(
				fmt.Errorf("%w: %w", engine.ErrInvalidPayload, err),
			)
		}
		if in == nil {
			in = map[string]any{}
		}

		out, err := e.Execute(proc, in, callTable(call))
		if err != nil {
			return nil, err
		}
		res := maps.Clone(in)
		maps.Copy(res, out)
		return json.Marshal(res)
	}, nil
}

// Compile sandboxes and compiles src, caching the result by source text
func (e *LuaEnv) Compile(src string) (*CompiledLua, error) {
	proc, err := e.cache.Get(src, func() (*CompiledLua, error) {
		return e.compile(e.wrapSource(src))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}
	return proc, nil
}

// Execute runs a compiled script against a payload and call description,
// returning the table the script produced
func (e *LuaEnv) Execute(
	proc *CompiledLua, payload, call map[string]any,
) (map[string]any, error) {
	L := e.getState()
	defer e.returnState(L)

	e.setupSandbox(L)
	if err := L.Load(bytes.NewReader(proc.bytecode), "chunk", "b"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	pushLuaMap(L, payload)
	pushLuaMap(L, call)

	if err := L.ProtectedCall(luaArgCount, 1, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}

	defer L.Pop(1)
	switch {
	case L.TypeOf(-1) == lua.TypeNil:
		return map[string]any{}, nil
	case L.IsTable(-1):
		return luaTableToMap(L, -1), nil
	default:
		return nil, ErrLuaResult
	}
}

func (e *LuaEnv) wrapSource(script string) string {
	return strings.Join([]string{luaPrelude, script}, luaSeparator)
}

func (e *LuaEnv) compile(src string) (*CompiledLua, error) {
	L := lua.NewState()

	e.setupSandbox(L)

	if err := lua.LoadString(L, src); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, err
	}

	return &CompiledLua{bytecode: buf.Bytes()}, nil
}

func (e *LuaEnv) setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
}

func (e *LuaEnv) getState() *lua.State {
	select {
	case L := <-e.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (e *LuaEnv) returnState(L *lua.State) {
	L.SetTop(0)

	select {
	case e.statePool <- L:
	default:
	}
}

func callTable(call *engine.Call) map[string]any {
	return map[string]any{
		"instance_id": string(call.InstanceID),
		"workflow":    string(call.Workflow),
		"step":        string(call.Step),
		"index":       call.Index,
		"attempt":     call.Attempt,
	}
}
