package op

import (
	"math/rand"
	"time"

	"github.com/jangala-dev/fibers/fiber"
)

// rng orders the fast-path probe uniformly at random so that a choice
// whose arms are all persistently ready cannot starve any of them.
var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// SeedRandom reseeds the probe-order source. Tests use it to make
// winner distributions reproducible.
func SeedRandom(seed int64) {
	rng = rand.New(rand.NewSource(seed))
}

// Perform synchronizes on the event and returns its committed values.
// It must be called from within a fiber; the fiber suspends if no leaf
// is immediately ready. The returned error is non-nil only when a guard
// builder failed or the pending performance was cancelled (for example
// at scheduler shutdown); committed events report their outcome through
// values, not through this error.
//
// Perform is the raw form: it does not race the ambient scope's
// cancellation. Scope-aware performance lives on the scope type.
func Perform(o Op) ([]any, error) {
	f := fiber.Current()
	if f == nil {
		panic(ErrPerformOutsideFiber)
	}
	leaves := make([]leaf, 0, 4)
	if err := compile(o, nil, nil, &leaves); err != nil {
		return nil, err
	}

	// Fast path: probe in random order; first ready leaf wins.
	for _, i := range rng.Perm(len(leaves)) {
		if vals, ok := leaves[i].try(); ok {
			signalNacks(leaves, i)
			if w := leaves[i].wrap; w != nil {
				vals = w(vals)
			}
			return vals, nil
		}
	}

	// Slow path: one suspension for the whole performance. A block
	// function that completes the suspension during install is fine;
	// the completion is delivered after the fiber yields below.
	u := fiber.NewSuspension(f)
	for i := range leaves {
		l := &leaves[i]
		l.block(u, l, l.wrap)
	}
	tok, _, vals, err := u.Wait()
	if err != nil {
		// No leaf won; every path lost, so every cond fires. This
		// releases Bracket resources on a cancelled performance.
		for i := range leaves {
			for _, c := range leaves[i].nacks {
				c.Signal()
			}
		}
		return nil, err
	}
	winner := -1
	for i := range leaves {
		if tok == any(&leaves[i]) {
			winner = i
			break
		}
	}
	signalNacks(leaves, winner)
	if w := leaves[winner].wrap; w != nil {
		vals = w(vals)
	}
	return vals, nil
}

// signalNacks fires, for every losing leaf, each cond on its path that
// is not also on the winner's path. Cond.Signal is idempotent, so a
// cond shared by several losers fires once.
func signalNacks(leaves []leaf, winner int) {
	var winnerSet map[*Cond]struct{}
	if n := len(leaves[winner].nacks); n > 0 {
		winnerSet = make(map[*Cond]struct{}, n)
		for _, c := range leaves[winner].nacks {
			winnerSet[c] = struct{}{}
		}
	}
	for i := range leaves {
		if i == winner {
			continue
		}
		for _, c := range leaves[i].nacks {
			if _, onWinner := winnerSet[c]; !onWinner {
				c.Signal()
			}
		}
	}
}
