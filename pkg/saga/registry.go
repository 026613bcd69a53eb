package saga

import (
	"github.com/chris-alexander-pop/system-design-library/pkg/concurrency"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
)

// Registry maps saga names to their Definition, so a reply handler can
// reconstruct "which saga, which step" from nothing but the name of the
// saga whose reply consumer received the message and the saga_id in the
// envelope — there is no in-memory saga continuation to look up instead.
type Registry struct {
	mu    *concurrency.SmartRWMutex
	sagas map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{
		mu:    concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "SagaRegistry"}),
		sagas: make(map[string]*Definition),
	}
}

// Register adds a Definition under its own name.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sagas[def.Name] = def
}

// Get looks up a Definition by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.sagas[name]
	return def, ok
}

// MustGet looks up a Definition by name, returning an AppError if missing.
func (r *Registry) MustGet(name string) (*Definition, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, errors.NotFound("saga not registered: "+name, nil)
	}
	return def, nil
}

// Instance is a running saga occurrence: a Definition paired with the id of
// the concrete saga it is driving. The engine holds no such pair in memory
// between messages -- an Instance is rebuilt on every reply from nothing
// but the name of the saga whose reply consumer received it (reply topics
// carry only the step's base task name) and the saga_id carried in its
// Envelope.
type Instance struct {
	Definition *Definition
	SagaID     int64
}

// New reconstructs the Instance for saga name at sagaID, looking up the
// Definition in the registry. Returns an AppError if name isn't registered.
func (r *Registry) New(name string, sagaID int64) (*Instance, error) {
	def, err := r.MustGet(name)
	if err != nil {
		return nil, err
	}
	return &Instance{Definition: def, SagaID: sagaID}, nil
}
