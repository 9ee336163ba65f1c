// Copyright 2026 The Tablekit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package linear

import "unsafe"

// Option provides an interface to do work on a Set[K] or a Map[K, V] while
// it is being created. The option vocabulary is shared by both container
// flavors, so it is parameterized over the key type only.
type Option[K comparable] interface {
	apply(c *config[K])
}

// config collects construction-time settings before the table is built.
type config[K comparable] struct {
	hash      hashFn
	equal     func(a, b K) bool
	allocator any
}

type hashOption[K comparable] struct {
	hash func(key *K, seed uintptr) uintptr
}

func (op hashOption[K]) apply(c *config[K]) {
	c.hash = *(*hashFn)(noescape(unsafe.Pointer(&op.hash)))
}

// WithHash is an option to specify the hash function to use for a Set[K] or
// a Map[K, V]. Keys that are equal under the configured equivalence must
// hash to the same value for every seed. The default is the hash function
// the Go runtime uses for map[K]struct{}.
func WithHash[K comparable](hash func(key *K, seed uintptr) uintptr) Option[K] {
	return hashOption[K]{hash}
}

type equalOption[K comparable] struct {
	equal func(a, b K) bool
}

func (op equalOption[K]) apply(c *config[K]) {
	c.equal = op.equal
}

// WithEqual is an option to specify the key equivalence relation for a
// Set[K] or a Map[K, V]. The default is ==. Supplying a custom equivalence
// almost always requires supplying a matching hash via WithHash.
func WithEqual[K comparable](equal func(a, b K) bool) Option[K] {
	return equalOption[K]{equal}
}

// Allocator specifies an interface for allocating and releasing memory used
// by a Set or a Map. The entry type E is K for a Set[K] and Entry[K, V] for
// a Map[K, V]. The default allocator utilizes Go's builtin make() and allows
// the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots and
// controls be freed then Close must be called in order to ensure FreeSlots
// and FreeControls are called.
type Allocator[E any] interface {
	// AllocSlots should return a slice equivalent to make([]E, n).
	AllocSlots(n int) []E

	// AllocControls should return a slice equivalent to make([]uint8, n).
	AllocControls(n int) []uint8

	// FreeSlots can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocSlots.
	FreeSlots(v []E)

	// FreeControls can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocControls.
	FreeControls(v []uint8)
}

type defaultAllocator[E any] struct{}

func (defaultAllocator[E]) AllocSlots(n int) []E {
	return make([]E, n)
}

func (defaultAllocator[E]) AllocControls(n int) []uint8 {
	return make([]uint8, n)
}

func (defaultAllocator[E]) FreeSlots(v []E) {
}

func (defaultAllocator[E]) FreeControls(v []uint8) {
}

type allocatorOption[K comparable] struct {
	allocator any
}

func (op allocatorOption[K]) apply(c *config[K]) {
	c.allocator = op.allocator
}

// WithAllocator is an option to specify the Allocator to use for a Set[K]
// or a Map[K, V]. E must be the container's entry type (K for a Set[K],
// Entry[K, V] for a Map[K, V]); construction panics on a mismatch.
func WithAllocator[K comparable, E any](allocator Allocator[E]) Option[K] {
	return allocatorOption[K]{allocator}
}
