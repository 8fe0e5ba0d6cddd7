// Package inventory selects sellable content units from a product's pool.
package inventory

import (
	"errors"
	"math/rand"
)

// ErrInsufficientStock is returned when the pool cannot cover the requested count.
var ErrInsufficientStock = errors.New("insufficient stock")

// Allocate picks count units from the pool uniformly at random without
// replacement. The returned allocated slice is in selection order and becomes
// the delivery order; remaining holds everything else, order unspecified.
// The input slice is not modified. The caller owns persisting both results
// atomically with the rest of the purchase. A seeded rng makes the selection
// reproducible.
func Allocate(rng *rand.Rand, units []string, count int) (allocated, remaining []string, err error) {
	if count < 1 || count > len(units) {
		return nil, nil, ErrInsufficientStock
	}

	pool := make([]string, len(units))
	copy(pool, units)

	allocated = make([]string, 0, count)
	for i := 0; i < count; i++ {
		idx := rng.Intn(len(pool))
		allocated = append(allocated, pool[idx])
		pool[idx] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}

	return allocated, pool, nil
}
