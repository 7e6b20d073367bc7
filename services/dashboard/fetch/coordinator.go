// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetch deduplicates concurrent network operations for the same
// logical resource.
//
// N simultaneous callers asking for the same key share one in-flight
// operation and one resolved or rejected outcome, which prevents the
// "N component mounts trigger N identical list requests" failure mode.
// The coordinator never retries; callers decide whether to retry.
package fetch

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Coordinator collapses concurrent identical requests into one shared
// outcome. Distinct keys are independent; a key becomes eligible for a
// new operation once its current operation settles.
//
// Safe for concurrent use.
type Coordinator struct {
	flight singleflight.Group
}

// New creates a coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Do executes fn under key unless an operation with the same key is
// already in flight, in which case the caller waits for and receives
// that operation's outcome. The boolean result reports whether the
// outcome was shared with at least one other caller.
//
// The context passed to fn is the context of the caller that actually
// started the operation; late joiners share its cancellation scope.
func Do[T any](c *Coordinator, ctx context.Context, key string, fn func(context.Context) (T, error)) (T, bool, error) {
	result, err, shared := c.flight.Do(key, func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, shared, err
	}
	return result.(T), shared, nil
}

// Forget removes any in-flight record for key so the next Do starts a
// fresh operation. Existing waiters still receive the original outcome.
func (c *Coordinator) Forget(key string) {
	c.flight.Forget(key)
}
