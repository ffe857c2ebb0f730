package automation

import "context"

// Store is the durable record of every automation request. Implementations
// must make CompareAndSetStatus the sole mutation path: the update applies
// only while the stored status still equals expected, and returns
// ConflictError otherwise. That conditional write is what linearizes
// concurrent transitions on a single record.
type Store interface {
	Create(ctx context.Context, request *AutomationRequest) error
	GetByID(ctx context.Context, id string) (*AutomationRequest, error)
	List(ctx context.Context, filter Filter) ([]*AutomationRequest, error)
	CompareAndSetStatus(ctx context.Context, id string, expected Status, patch Patch) (*AutomationRequest, error)
}
