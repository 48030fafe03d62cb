// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"fmt"
	"runtime"

	"github.com/cockroachdb/errors"
	ants "github.com/panjf2000/ants/v2"
)

// Pool 是基于 ants 的泛型协程池，每个提交的任务都会得到一个 Future。
type Pool[T any] struct {
	inner *ants.Pool
	opt   *poolOption
}

// NewPool 创建容量为 cap 的协程池，cap 非正时使用 GOMAXPROCS。
func NewPool[T any](cap int, opts ...PoolOption) *Pool[T] {
	if cap <= 0 {
		cap = runtime.GOMAXPROCS(0)
	}
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		panic(err)
	}
	return &Pool[T]{
		inner: pool,
		opt:   opt,
	}
}

// NewDefaultPool 创建容量为 GOMAXPROCS 的协程池。
func NewDefaultPool[T any](opts ...PoolOption) *Pool[T] {
	return NewPool[T](0, opts...)
}

// Submit 提交一个任务，任务的 panic 会被转换为 Future 上的错误。
// 协程池已关闭或非阻塞模式下已满时，返回的 Future 立即以错误完成。
func (pool *Pool[T]) Submit(method func() (T, error)) *Future[T] {
	future := newFuture[T]()
	err := pool.inner.Submit(func() {
		defer close(future.ch)
		defer func() {
			if x := recover(); x != nil {
				future.err = panicError(x)
			}
		}()
		if pool.opt.preHandler != nil {
			pool.opt.preHandler()
		}
		future.value, future.err = method()
	})
	if err != nil {
		future.err = errors.Wrap(err, "submit task")
		close(future.ch)
	}
	return future
}

// Cap 返回协程池容量。
func (pool *Pool[T]) Cap() int {
	return pool.inner.Cap()
}

// Running 返回正在执行任务的 worker 数。
func (pool *Pool[T]) Running() int {
	return pool.inner.Running()
}

// Free 返回空闲的 worker 数。
func (pool *Pool[T]) Free() int {
	return pool.inner.Free()
}

// Release 关闭协程池，之后的 Submit 都会失败。
func (pool *Pool[T]) Release() {
	pool.inner.Release()
}

func panicError(x any) error {
	if err, ok := x.(error); ok {
		return errors.Wrap(err, "task panicked")
	}
	return errors.Newf("task panicked: %s", fmt.Sprint(x))
}
