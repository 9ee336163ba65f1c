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

// hashFn matches the signature of the hash functions the Go runtime
// generates for map keys: a pointer to the key and a seed, returning the
// hash value.
type hashFn func(key unsafe.Pointer, seed uintptr) uintptr

// getRuntimeHasher returns the hash function the Go runtime would use for a
// map keyed by K. The runtime does not export these functions, so we read
// the Hasher field out of the map type descriptor. The mirrored layouts
// below correspond to internal/abi as of Go 1.24 and must be re-verified on
// toolchain upgrades.
func getRuntimeHasher[K comparable]() hashFn {
	var m map[K]struct{}
	return typeOf(m).mapType().Hasher
}

// abiType mirrors the prefix of internal/abi.Type. Only the field offsets
// matter; the fields themselves are never written.
type abiType struct {
	Size_       uintptr
	PtrBytes    uintptr
	Hash        uint32
	TFlag       uint8
	Align_      uint8
	FieldAlign_ uint8
	Kind_       uint8
	Equal       func(unsafe.Pointer, unsafe.Pointer) bool
	GCData      *byte
	Str         int32
	PtrToThis   int32
}

func (t *abiType) mapType() *abiMapType {
	return (*abiMapType)(unsafe.Pointer(t))
}

// abiMapType mirrors the prefix of internal/abi.SwissMapType.
type abiMapType struct {
	abiType
	Key   *abiType
	Elem  *abiType
	Group *abiType
	// Hasher is the function the runtime hashes keys of this map type
	// with: (pointer to key, seed) -> hash.
	Hasher func(unsafe.Pointer, uintptr) uintptr
}

// typeOf returns the type descriptor of a's dynamic type. Type descriptors
// are either static or permanently reachable, so hiding the pointer from
// escape analysis is safe and keeps a from escaping.
func typeOf(a any) *abiType {
	e := (*abiEface)(unsafe.Pointer(&a))
	return (*abiType)(noescape(unsafe.Pointer(e.typ)))
}

// abiEface mirrors the layout of the empty interface.
type abiEface struct {
	typ  *abiType
	data unsafe.Pointer
}

// noescape hides a pointer from escape analysis.  noescape is
// the identity function but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}

func unsafeConvertSlice[Dest any, Src any](s []Src) []Dest {
	return unsafe.Slice((*Dest)(unsafe.Pointer(unsafe.SliceData(s))), len(s))
}
