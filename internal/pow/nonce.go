// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pow

const (
	// NonceRange is the size of the nonce chunk owned by each worker of a
	// multi-worker farm.
	NonceRange = uint64(100000000000)

	// MaxPrefix is the greatest nonce prefix a node may be configured with.
	MaxPrefix = uint64(899)
)

// ScalePrefix converts a configured nonce prefix into the amount added to
// every nonce searched so that the prefix occupies the high-order digits.
// Values that are already scaled are returned unchanged.
func ScalePrefix(prefix uint64) uint64 {
	if prefix > 0 && prefix < NonceRange {
		return prefix * 100 * NonceRange
	}
	return prefix
}

// NonceBeginning returns the first nonce of the chunk owned by the worker at
// the given index.  A lone worker owns the whole space.
func NonceBeginning(index, nbWorkers int) uint64 {
	if nbWorkers <= 1 {
		return 0
	}
	return uint64(index+1) * NonceRange
}
