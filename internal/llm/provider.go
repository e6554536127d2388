package llm

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrUnknownEvaluator se devuelve cuando se pide un evaluador que no esta en el pool.
var ErrUnknownEvaluator = errors.New("unknown evaluator")

// Registry is the read-only pool of evaluator identities available to a run.
// Order is preserved: it is the order in which evaluators are picked.
type Registry struct {
	ids        []string
	evaluators map[string]Evaluator
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

// Register adds an evaluator under id; duplicate or empty ids are rejected.
func (r *Registry) Register(id string, ev Evaluator) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("register evaluator: empty id")
	}
	if ev == nil {
		return fmt.Errorf("register evaluator %s: nil evaluator", id)
	}
	if _, ok := r.evaluators[id]; ok {
		return fmt.Errorf("register evaluator %s: duplicate id", id)
	}
	r.ids = append(r.ids, id)
	r.evaluators[id] = ev
	return nil
}

// Get returns the evaluator registered under id.
func (r *Registry) Get(id string) (Evaluator, error) {
	ev, ok := r.evaluators[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvaluator, id)
	}
	return ev, nil
}

// IDs returns a copy of the evaluator ids in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Len returns the pool size.
func (r *Registry) Len() int { return len(r.ids) }

// NewHTTPRegistry registra un HTTPClient por modelo, todos contra el mismo endpoint.
func NewHTTPRegistry(baseURL, apiKey string, models []string, logger *zap.Logger) (*Registry, error) {
	reg := NewRegistry()
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if err := reg.Register(m, NewHTTPClient(baseURL, apiKey, m, logger)); err != nil {
			return nil, err
		}
	}
	if reg.Len() == 0 {
		return nil, errors.New("no evaluator models configured")
	}
	return reg, nil
}
