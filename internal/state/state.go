package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store is the contract every state backend implements. Values are opaque
// serialized blobs; keys are detector-namespaced ("detector:entity") and the
// backend prefixes them with its configured namespace. Backends must offer
// read-after-write consistency for a single key; no cross-key transactions
// are assumed.
type Store interface {
	// Initialize acquires the backend connection. Must be called before any
	// other operation.
	Initialize(ctx context.Context) error

	// Get returns the value for key. The second return value is false when
	// the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Save stores value under key, overwriting any previous value. A zero
	// ttl means the record does not expire.
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the record for key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// DeleteAll removes every record in the store's namespace.
	DeleteAll(ctx context.Context) error

	// Done releases the backend connection. Safe to call on all exit paths.
	Done() error
}

// StateError wraps a backend I/O or protocol failure. Callers treat it as a
// retryable local failure.
type StateError struct {
	Op  string
	Key string
	Err error
}

func (e *StateError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("state %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("state %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// IsStateError reports whether err is (or wraps) a StateError.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// GetJSON reads and decodes a JSON record. The boolean result is false when
// the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, found, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal state record %q: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes and stores a JSON record.
func SaveJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal state record %q: %w", key, err)
	}
	return s.Save(ctx, key, data, ttl)
}
