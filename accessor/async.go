/*
 * Copyright 2026 crudkit.
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

package accessor

import (
	"context"

	"github.com/crudkit/crudkit/types"
	"github.com/uptrace/bun"
)

// Future is the pending result of one asynchronous accessor operation.
type Future[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func newFuture[V any](run func() (V, error)) *Future[V] {
	f := &Future[V]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = run()
	}()
	return f
}

// Await blocks until the operation completes or ctx is done, whichever comes
// first. Cancelling ctx abandons the wait, not the operation: the underlying
// unit of work still runs to its committed or failed terminal state.
func (f *Future[V]) Await(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Done reports whether the operation has completed without blocking.
func (f *Future[V]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// AsyncAccessor is the suspending variant of Accessor: the same operations
// with the same inputs, outputs and error conditions, each returning a
// Future instead of blocking the caller. Both variants share one algorithmic
// core, so they cannot drift apart.
//
// The session discipline is unchanged: one bun.Tx must not back concurrently
// in-flight operations, so callers sequencing futures over a transaction
// should await each before launching the next.
type AsyncAccessor[T, C, U, F any] struct {
	inner *Accessor[T, C, U, F]
}

// NewAsyncAccessor constructs the suspending variant, with the same
// preconditions as NewAccessor.
func (b *Binding[T, C, U, F]) NewAsyncAccessor(db bun.IDB, idColumn string) (*AsyncAccessor[T, C, U, F], error) {
	inner, err := b.NewAccessor(db, idColumn)
	if err != nil {
		return nil, err
	}
	return &AsyncAccessor[T, C, U, F]{inner: inner}, nil
}

// Blocking returns the blocking accessor sharing this variant's binding and
// session.
func (a *AsyncAccessor[T, C, U, F]) Blocking() *Accessor[T, C, U, F] {
	return a.inner
}

// Async returns the suspending variant sharing this accessor's binding and
// session.
func (a *Accessor[T, C, U, F]) Async() *AsyncAccessor[T, C, U, F] {
	return &AsyncAccessor[T, C, U, F]{inner: a}
}

func (a *AsyncAccessor[T, C, U, F]) Create(ctx context.Context, in *C) *Future[*T] {
	return newFuture(func() (*T, error) { return a.inner.Create(ctx, in) })
}

func (a *AsyncAccessor[T, C, U, F]) Read(ctx context.Context, q *Query[F]) *Future[[]*T] {
	return newFuture(func() ([]*T, error) { return a.inner.Read(ctx, q) })
}

func (a *AsyncAccessor[T, C, U, F]) ReadByID(ctx context.Context, id any) *Future[*T] {
	return newFuture(func() (*T, error) { return a.inner.ReadByID(ctx, id) })
}

func (a *AsyncAccessor[T, C, U, F]) Update(ctx context.Context, id any, in *U) *Future[*T] {
	return newFuture(func() (*T, error) { return a.inner.Update(ctx, id, in) })
}

func (a *AsyncAccessor[T, C, U, F]) Delete(ctx context.Context, id any) *Future[*T] {
	return newFuture(func() (*T, error) { return a.inner.Delete(ctx, id) })
}

func (a *AsyncAccessor[T, C, U, F]) ReadPage(ctx context.Context, page *types.PageRequest[F]) *Future[*types.Pagination[T]] {
	return newFuture(func() (*types.Pagination[T], error) { return a.inner.ReadPage(ctx, page) })
}
