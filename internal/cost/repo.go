package cost

import "context"

// Store persists cost records and alert state.
type Store interface {
	Append(ctx context.Context, rec Record) (Record, error)
	ListByApplication(ctx context.Context, applicationID string) ([]Record, error)
	// MarkAlerted records the alert and reports whether this call was the first for the application.
	MarkAlerted(ctx context.Context, b Breach) (bool, error)
}
