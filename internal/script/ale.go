package script

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kode4food/ale"
	"github.com/kode4food/ale/core/bootstrap"
	"github.com/kode4food/ale/data"
	"github.com/kode4food/ale/env"
	"github.com/kode4food/ale/eval"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/util"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

// AleEnv runs Ale scripts as workflow steps. A script is the body of a
// lambda whose parameters are the payload fields named in Source.Args,
// followed by the helper procedures of the environment
type AleEnv struct {
	env     *env.Environment
	cache   *util.LRUCache[string, data.Procedure]
	helpers map[string]data.Procedure
}

const (
	aleLambdaTemplate = "(lambda (%s) %s)"
	aleCacheSize      = 256

	// HelperCollapse trims a string and collapses its runs of whitespace
	HelperCollapse = "collapse"
)

var _ Environment = (*AleEnv)(nil)

var (
	ErrAleNotProcedure = errors.New("not a procedure")
	ErrAleCompile      = errors.New("script compile error")
	ErrAleCall         = errors.New("error calling procedure")
	ErrAleResult       = errors.New("ale script must return an object or nil")
)

// NewAleEnv creates an Ale execution environment with the standard
// bootstrap and the built-in helpers
func NewAleEnv() *AleEnv {
	e := env.NewEnvironment()
	bootstrap.Into(e)
	return &AleEnv{
		env:   e,
		cache: util.NewLRUCache[string, data.Procedure](aleCacheSize),
		helpers: map[string]data.Procedure{
			HelperCollapse: data.MakeProcedure(collapse, 1),
		},
	}
}

// Step compiles src into a StepFunc. The object the script returns is
// merged over the payload, and nil leaves the payload unchanged
func (e *AleEnv) Step(name api.StepName, src Source) (engine.StepFunc, error) {
	proc, err := e.Compile(src.Script, src.Args)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", name, err)
	}
	helpers := e.helperValues()

	return func(
		_ context.Context, _ *engine.Call, payload json.RawMessage,
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

		args := make(data.Vector, 0, len(src.Args)+len(helpers))
		for _, name := range src.Args {
			args = append(args, argValue(in, name))
		}
		args = append(args, helpers...)

		out, err := execute(proc, args)
		if err != nil {
			return nil, err
		}
		res := maps.Clone(in)
		maps.Copy(res, out)
		return json.Marshal(res)
	}, nil
}

// Compile wraps src in a lambda over argNames and the helper names,
// caching the procedure by source text and argument names
func (e *AleEnv) Compile(
	src string, argNames []string,
) (data.Procedure, error) {
	names := slices.Concat(argNames, e.helperNames())
	return e.cache.Get(scriptKey(src, names), func() (data.Procedure, error) {
		return e.compile(src, names)
	})
}

func (e *AleEnv) compile(src string, names []string) (data.Procedure, error) {
	lambda := fmt.Sprintf(aleLambdaTemplate, strings.Join(names, " "), src)

	return catchPanic(ErrAleCompile,
		func() (data.Procedure, error) {
			ns := e.env.GetAnonymous()
			res, err := eval.String(ns, data.String(lambda))
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrAleCompile, err)
			}

			proc, ok := res.(data.Procedure)
			if !ok {
				return nil, fmt.Errorf("%w, got: %T", ErrAleNotProcedure, res)
			}
			return proc, nil
		},
	)
}

func (e *AleEnv) helperNames() []string {
	return slices.Sorted(maps.Keys(e.helpers))
}

func (e *AleEnv) helperValues() []ale.Value {
	names := e.helperNames()
	res := make([]ale.Value, len(names))
	for i, name := range names {
		res[i] = e.helpers[name]
	}
	return res
}

func execute(proc data.Procedure, args data.Vector) (map[string]any, error) {
	res, err := catchPanic(ErrAleCall,
		func() (ale.Value, error) {
			return proc.Call(args...), nil
		},
	)
	if err != nil {
		return nil, err
	}
	if res == data.Null {
		return map[string]any{}, nil
	}
	obj, ok := res.(*data.Object)
	if !ok {
		return nil, fmt.Errorf("%w, got: %T", ErrAleResult, res)
	}
	return aleObjectToJSON(obj), nil
}

func argValue(in map[string]any, name string) ale.Value {
	value, ok := in[name]
	if !ok {
		return data.Null
	}
	return jsonToAle(value)
}

func collapse(args ...ale.Value) ale.Value {
	s, _ := args[0].(data.String)
	return data.String(strings.Join(strings.Fields(string(s)), " "))
}

func scriptKey(src string, names []string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(src))
	for _, name := range names {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(name))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func catchPanic[T any](baseErr error, fn func() (T, error)) (res T, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			err = fmt.Errorf("%w: %w", baseErr, e)
			return
		}
		err = fmt.Errorf("%w: %v", baseErr, r)
	}()
	return fn()
}

func jsonToAle(value any) ale.Value {
	switch v := value.(type) {
	case string:
		return data.String(v)
	case bool:
		return data.Bool(v)
	case float64:
		if v == float64(int64(v)) {
			return data.Integer(int64(v))
		}
		return data.Float(v)
	case []any:
		vec := make(data.Vector, len(v))
		for i, item := range v {
			vec[i] = jsonToAle(item)
		}
		return vec
	case map[string]any:
		obj := data.NewObject()
		for k, val := range v {
			pair := data.NewCons(data.Keyword(k), jsonToAle(val))
			obj = obj.Put(pair).(*data.Object)
		}
		return obj
	case nil:
		return data.Null
	default:
		return data.String(fmt.Sprintf("%v", v))
	}
}

func aleToJSON(value ale.Value) any {
	if value == data.Null {
		return nil
	}
	switch v := value.(type) {
	case data.String:
		return string(v)
	case data.Bool:
		return bool(v)
	case data.Keyword:
		return string(v)
	case data.Integer:
		return int64(v)
	case data.Float:
		return float64(v)
	case data.Vector:
		res := make([]any, len(v))
		for i, item := range v {
			res[i] = aleToJSON(item)
		}
		return res
	case *data.List:
		return aleListToJSON(v)
	case *data.Object:
		return aleObjectToJSON(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func aleListToJSON(list *data.List) []any {
	res := []any{}
	for l := list; !l.IsEmpty(); {
		head, tail, ok := l.Split()
		if !ok {
			break
		}
		res = append(res, aleToJSON(head))
		l = tail.(*data.List)
	}
	return res
}

func aleObjectToJSON(obj *data.Object) map[string]any {
	res := map[string]any{}
	for _, pair := range obj.Pairs() {
		key := fmt.Sprintf("%v", aleToJSON(pair.Car()))
		res[key] = aleToJSON(pair.Cdr())
	}
	return res
}
