package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
)

const workflowSchema = `
CREATE TABLE IF NOT EXISTS workflow_instances (
	id         TEXT        PRIMARY KEY,
	kind       TEXT        NOT NULL,
	params     BYTEA       NOT NULL,
	state      TEXT        NOT NULL,
	error_text TEXT        NOT NULL DEFAULT '',
	output     BYTEA,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS workflow_steps (
	instance_id TEXT        NOT NULL REFERENCES workflow_instances (id),
	step        TEXT        NOT NULL,
	output      BYTEA       NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (instance_id, step)
);
`

// WorkflowStore persists workflow instances and their step-output ledger.
type WorkflowStore struct {
	pool   Pool
	logger *zap.Logger
}

// NewWorkflowStore connects a pool and returns a store backed by it.
func NewWorkflowStore(ctx context.Context, cfg Config, logger *zap.Logger) (*WorkflowStore, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWorkflowStoreWithPool(pool, logger), nil
}

// NewWorkflowStoreWithPool wraps an existing pool. Used by tests with pgxmock.
func NewWorkflowStoreWithPool(pool Pool, logger *zap.Logger) *WorkflowStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowStore{pool: pool, logger: logger}
}

// EnsureSchema creates the workflow tables if they do not exist.
func (s *WorkflowStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, workflowSchema); err != nil {
		return fmt.Errorf("ensure workflow schema: %w", err)
	}
	return nil
}

// CreateInstance records a new workflow instance.
func (s *WorkflowStore) CreateInstance(ctx context.Context, inst core.WorkflowInstance) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_instances (id, kind, params, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		inst.ID, string(inst.Kind), inst.Params, string(inst.State), inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow instance: %w", err)
	}
	return nil
}

// UpdateInstance transitions an instance's state, recording the terminal
// error or output when present.
func (s *WorkflowStore) UpdateInstance(ctx context.Context, id string, state core.WorkflowState, errText string, output []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflow_instances
		 SET state = $2, error_text = $3, output = $4, updated_at = now()
		 WHERE id = $1`,
		id, string(state), errText, output)
	if err != nil {
		return fmt.Errorf("update workflow instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrWorkflowNotFound
	}
	return nil
}

// GetInstance returns one workflow instance by id.
func (s *WorkflowStore) GetInstance(ctx context.Context, id string) (core.WorkflowInstance, error) {
	var inst core.WorkflowInstance
	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, params, state, error_text, output, created_at, updated_at
		 FROM workflow_instances WHERE id = $1`, id).
		Scan(&inst.ID, &inst.Kind, &inst.Params, &inst.State, &inst.ErrorText,
			&inst.Output, &inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.WorkflowInstance{}, core.ErrWorkflowNotFound
	}
	if err != nil {
		return core.WorkflowInstance{}, fmt.Errorf("query workflow instance: %w", err)
	}
	return inst, nil
}

// GetStepOutput returns the memoized output for a step, with ok reporting
// whether the step has completed before.
func (s *WorkflowStore) GetStepOutput(ctx context.Context, instanceID, step string) ([]byte, bool, error) {
	var output []byte
	err := s.pool.QueryRow(ctx,
		`SELECT output FROM workflow_steps WHERE instance_id = $1 AND step = $2`,
		instanceID, step).Scan(&output)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query step output: %w", err)
	}
	return output, true, nil
}

// PutStepOutput records a step's output. The first completion wins; replays
// of an already completed step are no-ops.
func (s *WorkflowStore) PutStepOutput(ctx context.Context, instanceID, step string, output []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_steps (instance_id, step, output)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (instance_id, step) DO NOTHING`,
		instanceID, step, output)
	if err != nil {
		return fmt.Errorf("insert step output: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *WorkflowStore) Close() {
	s.pool.Close()
}
