/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an unregistered context name or a missing row.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOperation reports misconfiguration or use after close.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInvalidArgument reports caller errors detected before any I/O.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCanceled reports an operation aborted through its context.
	ErrCanceled = errors.New("operation canceled")
	// ErrConcurrencyConflict reports a stale row version on update.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// PersistenceError wraps a failure surfaced by the storage engine.
// The engine error is kept as is and reachable through errors.Unwrap.
type PersistenceError struct {
	Op     string
	Reason string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("persistence: %s failed (%s): %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("persistence: %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistenceError reports whether err carries a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// Canceled wraps a context error so that it matches both ErrCanceled and
// the original context error. Other errors are returned unchanged.
func Canceled(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCanceled) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return err
}

// CheckContext returns a cancellation error when ctx is already done.
func CheckContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return Canceled(ctx.Err())
}
