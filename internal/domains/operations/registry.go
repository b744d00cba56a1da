package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dcarrith/chaimcp/internal/adapters/chiarpc"
)

var (
	ErrOperationNotFound  = errors.New("operation not found or disabled")
	ErrInvalidArguments   = errors.New("invalid arguments")
	ErrDuplicateOperation = errors.New("duplicate operation")
)

// DisabledSet holds trimmed operation names. Matching is exact and case-sensitive.
type DisabledSet map[string]struct{}

// ParseDisabled splits a comma-separated list such as "get_blockchain_state, generate_mnemonic".
func ParseDisabled(csv string) DisabledSet {
	out := make(DisabledSet)
	for _, part := range strings.Split(csv, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		out[name] = struct{}{}
	}
	return out
}

func (d DisabledSet) Contains(name string) bool {
	_, ok := d[strings.TrimSpace(name)]
	return ok
}

// Registry is the exposed operation set. It is filled once at startup and read-only after.
type Registry struct {
	disabled DisabledSet
	ops      []Operation
	index    map[string]int
	logger   *slog.Logger
}

func NewRegistry(disabled DisabledSet, logger *slog.Logger) *Registry {
	if disabled == nil {
		disabled = DisabledSet{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		disabled: disabled,
		index:    make(map[string]int),
		logger:   logger,
	}
}

// Register adds op unless its name is disabled. It reports whether op was added.
func (r *Registry) Register(op Operation) (bool, error) {
	op.Name = strings.TrimSpace(op.Name)
	if op.Name == "" {
		return false, errors.New("operation name is required")
	}
	if op.Handler == nil {
		return false, fmt.Errorf("operation %s has no handler", op.Name)
	}
	if r.disabled.Contains(op.Name) {
		r.logger.Info("operation disabled by configuration", "component", "operations", "operation", op.Name)
		return false, nil
	}
	if _, exists := r.index[op.Name]; exists {
		return false, fmt.Errorf("%w: %s", ErrDuplicateOperation, op.Name)
	}
	r.index[op.Name] = len(r.ops)
	r.ops = append(r.ops, op)
	return true, nil
}

// List returns enabled operations in registration order.
func (r *Registry) List() []Operation {
	out := make([]Operation, len(r.ops))
	copy(out, r.ops)
	return out
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op.Name)
	}
	return out
}

func (r *Registry) Lookup(name string) (Operation, bool) {
	i, ok := r.index[name]
	if !ok {
		return Operation{}, false
	}
	return r.ops[i], true
}

// Invoke validates args and returns the handler's Result as-is. Call failures are inside
// the Result; the error return is reserved for lookup, argument and dispatch problems.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (chiarpc.Result, error) {
	op, ok := r.Lookup(name)
	if !ok {
		return chiarpc.Result{}, fmt.Errorf("%w: %s", ErrOperationNotFound, name)
	}
	body, err := op.bindArguments(args)
	if err != nil {
		return chiarpc.Result{}, err
	}
	return op.Handler(ctx, body)
}

// Dispatcher performs one backend call for a service endpoint.
type Dispatcher interface {
	Dispatch(ctx context.Context, service, endpoint string, body map[string]any) (chiarpc.Result, error)
}

// Build filters catalog through disabled and binds every operation without a handler
// to dispatcher.
func Build(catalog []Operation, disabled DisabledSet, dispatcher Dispatcher, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry(disabled, logger)
	for _, op := range catalog {
		if op.Handler == nil {
			if dispatcher == nil {
				return nil, fmt.Errorf("operation %s needs a dispatcher", op.Name)
			}
			op.Handler = bindDispatcher(dispatcher, op.Service, op.BackendEndpoint())
		}
		if _, err := reg.Register(op); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func bindDispatcher(d Dispatcher, service, endpoint string) Handler {
	return func(ctx context.Context, body map[string]any) (chiarpc.Result, error) {
		return d.Dispatch(ctx, service, endpoint, body)
	}
}
