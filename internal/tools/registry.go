// internal/tools/registry.go

// Package tools hosts the invocable tool surface: the registry that owns
// descriptors and handlers, the dispatcher that validates and routes every
// call, and the handlers themselves.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagesmith/api/schemas"
)

// Handler executes one tool invocation against already validated
// arguments.
type Handler func(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error)

type registration struct {
	desc    schemas.ToolDescriptor
	handler Handler
}

// Registry owns the tool table and dispatches calls through the shared
// validation and fault-resolution pipeline.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	tools map[string]*registration
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("tools"),
		tools:  make(map[string]*registration),
	}
}

// Register adds a tool. Names are unique; re-registering one is a
// programming error surfaced at startup.
func (r *Registry) Register(desc schemas.ToolDescriptor, handler Handler) error {
	if desc.Name == "" {
		return fmt.Errorf("tool descriptor requires a name")
	}
	if handler == nil {
		return fmt.Errorf("tool %q requires a handler", desc.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("tool %q is already registered", desc.Name)
	}
	r.tools[desc.Name] = &registration{desc: desc, handler: handler}
	r.order = append(r.order, desc.Name)
	return nil
}

// List returns every descriptor in registration order.
func (r *Registry) List() []schemas.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemas.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].desc)
	}
	return out
}

// Call dispatches one invocation. Arguments are validated against the
// tool's schema before the handler runs, so rejected calls have no side
// effects. Recoverable faults (unknown tool, bad arguments, and any
// recoverable ToolError from the handler) resolve into a structured
// result; everything else propagates as a hard error.
func (r *Registry) Call(ctx context.Context, name string, args map[string]interface{}) (*schemas.ToolResult, error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return schemas.ErrorResult(schemas.CodeNotFound,
			fmt.Sprintf("no tool named %q is registered", name),
			"list the available tools and retry with one of their names"), nil
	}

	if err := validateArgs(reg.desc.Parameters, args); err != nil {
		return schemas.ErrorResult(schemas.CodeInvalidArguments,
			fmt.Sprintf("invalid arguments for %q: %v", name, err),
			"correct the arguments to match the tool's parameter schema"), nil
	}

	start := time.Now()
	result, err := r.invoke(ctx, reg, args)
	elapsed := time.Since(start)

	if err != nil {
		if te, ok := schemas.AsToolError(err); ok && te.Code.Recoverable() {
			r.logger.Debug("Tool call recovered locally.",
				zap.String("tool", name), zap.String("code", string(te.Code)), zap.Duration("elapsed", elapsed))
			return schemas.ErrorResult(te.Code, te.Message, te.Suggestions...), nil
		}
		r.logger.Warn("Tool call failed.",
			zap.String("tool", name), zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, err
	}

	r.logger.Debug("Tool call completed.",
		zap.String("tool", name), zap.Bool("is_error", result.IsError), zap.Duration("elapsed", elapsed))
	return result, nil
}

// invoke runs the handler with panic containment. A panicking handler
// must not take the server down with it.
func (r *Registry) invoke(ctx context.Context, reg *registration, args map[string]interface{}) (result *schemas.ToolResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Tool handler panicked.",
				zap.String("tool", reg.desc.Name), zap.Any("panic", rec), zap.Stack("stack"))
			result = nil
			err = schemas.NewToolError(schemas.CodeInternal,
				fmt.Sprintf("tool %q failed internally", reg.desc.Name))
		}
	}()
	result, err = reg.handler(ctx, args)
	if err == nil && result == nil {
		err = schemas.NewToolError(schemas.CodeInternal,
			fmt.Sprintf("tool %q returned no result", reg.desc.Name))
	}
	return result, err
}

// validateArgs checks the raw argument map against the parameter schema:
// every required property present, every supplied property of the
// declared type. Unknown properties are rejected so typos surface
// instead of being silently ignored.
func validateArgs(schema schemas.ParameterSchema, args map[string]interface{}) error {
	for _, required := range schema.Required {
		v, ok := args[required]
		if !ok || v == nil {
			return fmt.Errorf("missing required property %q", required)
		}
	}

	var problems []string
	for key, value := range args {
		spec, known := schema.Properties[key]
		if !known {
			problems = append(problems, fmt.Sprintf("unknown property %q", key))
			continue
		}
		if value == nil {
			continue
		}
		if err := checkType(key, spec, value); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func checkType(key string, spec schemas.PropertySpec, value interface{}) error {
	switch spec.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("property %q must be a string", key)
		}
		if len(spec.Enum) > 0 && !contains(spec.Enum, s) {
			return fmt.Errorf("property %q must be one of %v", key, spec.Enum)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("property %q must be a boolean", key)
		}
	case "integer":
		switch n := value.(type) {
		case int:
		case float64:
			if n != float64(int(n)) {
				return fmt.Errorf("property %q must be an integer", key)
			}
		default:
			return fmt.Errorf("property %q must be an integer", key)
		}
	case "number":
		switch value.(type) {
		case int, float64:
		default:
			return fmt.Errorf("property %q must be a number", key)
		}
	case "object":
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Errorf("property %q must be an object", key)
		}
	case "array":
		if _, ok := value.([]interface{}); !ok {
			return fmt.Errorf("property %q must be an array", key)
		}
	}
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// decodeArgs round-trips the validated argument map through JSON into a
// typed struct, so handlers work with real types instead of raw maps.
func decodeArgs(args map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode arguments: %w", err)
	}
	return nil
}
