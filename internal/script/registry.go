package script

import (
	"errors"
	"fmt"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type (
	// Language names a scripting language a step can be written in
	Language string

	// Source is a step script and the language it is written in
	Source struct {
		Language Language
		Script   string

		// Args names the payload fields bound as script arguments. Lua
		// scripts see the whole payload and ignore it
		Args []string
	}

	// Environment compiles step scripts of one language
	Environment interface {
		Step(name api.StepName, src Source) (engine.StepFunc, error)
	}

	// Registry manages script environments for different languages
	Registry struct {
		envs map[Language]Environment
	}
)

const (
	LangAle Language = "ale"
	LangLua Language = "lua"
)

var ErrUnsupportedLanguage = errors.New("unsupported script language")

// NewRegistry creates a registry with Ale and Lua environments
func NewRegistry() *Registry {
	return &Registry{
		envs: map[Language]Environment{
			LangAle: NewAleEnv(),
			LangLua: NewLuaEnv(),
		},
	}
}

func (r *Registry) Register(lang Language, env Environment) {
	r.envs[lang] = env
}

// Get returns the environment for lang
func (r *Registry) Get(lang Language) (Environment, error) {
	env, ok := r.envs[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	return env, nil
}

// Step compiles src in the environment of its language
func (r *Registry) Step(
	name api.StepName, src Source,
) (engine.StepFunc, error) {
	env, err := r.Get(src.Language)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", name, err)
	}
	return env.Step(name, src)
}
