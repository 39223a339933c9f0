package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wizenheimer/wayback/internal/core"
)

type stepKey struct {
	instanceID string
	step       string
}

// WorkflowStore keeps workflow instances and the step ledger in maps.
type WorkflowStore struct {
	mu        sync.RWMutex
	instances map[string]core.WorkflowInstance
	steps     map[stepKey][]byte
}

// NewWorkflowStore returns an empty in-memory workflow store.
func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{
		instances: make(map[string]core.WorkflowInstance),
		steps:     make(map[stepKey][]byte),
	}
}

// CreateInstance records a new workflow instance.
func (s *WorkflowStore) CreateInstance(_ context.Context, inst core.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[inst.ID] = inst
	return nil
}

// UpdateInstance transitions an instance's state.
func (s *WorkflowStore) UpdateInstance(_ context.Context, id string, state core.WorkflowState, errText string, output []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return core.ErrWorkflowNotFound
	}
	inst.State = state
	inst.ErrorText = errText
	inst.Output = output
	inst.UpdatedAt = time.Now().UTC()
	s.instances[id] = inst
	return nil
}

// GetInstance returns one workflow instance or ErrWorkflowNotFound.
func (s *WorkflowStore) GetInstance(_ context.Context, id string) (core.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return core.WorkflowInstance{}, core.ErrWorkflowNotFound
	}
	return inst, nil
}

// GetStepOutput returns the memoized output for a step.
func (s *WorkflowStore) GetStepOutput(_ context.Context, instanceID, step string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	output, ok := s.steps[stepKey{instanceID, step}]
	return output, ok, nil
}

// PutStepOutput records a step's output. The first completion wins.
func (s *WorkflowStore) PutStepOutput(_ context.Context, instanceID, step string, output []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stepKey{instanceID, step}
	if _, ok := s.steps[key]; !ok {
		s.steps[key] = output
	}
	return nil
}
