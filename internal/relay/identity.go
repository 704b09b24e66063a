package relay

import (
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"sync"
)

// DefaultMaxNameAttempts bounds how many random combinations Allocate tries
// before giving up.
const DefaultMaxNameAttempts = 100

// ErrNamesExhausted is returned when no unused display name could be found
// within the attempt budget.
var ErrNamesExhausted = errors.New("unable to generate a unique user name")

// IdentityAllocator hands out display names that are pairwise distinct among
// connected sessions.
type IdentityAllocator interface {
	Allocate() (string, error)
	Release(name string)
}

// NameAllocator builds names from two different words of a vocabulary.
// All methods are safe for concurrent use.
type NameAllocator struct {
	mu          sync.Mutex
	words       []string
	assigned    map[string]struct{}
	maxAttempts int

	// intn returns a uniform random integer in [0, n).
	intn func(n int) int
}

var _ IdentityAllocator = (*NameAllocator)(nil)

// NewNameAllocator creates an allocator over the built-in vocabulary.
func NewNameAllocator(maxAttempts int) *NameAllocator {
	return NewNameAllocatorWithWords(gameNames, maxAttempts)
}

// NewNameAllocatorWithWords creates an allocator over a custom vocabulary.
// The vocabulary needs at least two distinct words.
func NewNameAllocatorWithWords(words []string, maxAttempts int) *NameAllocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxNameAttempts
	}
	return &NameAllocator{
		words:       words,
		assigned:    make(map[string]struct{}),
		maxAttempts: maxAttempts,
		intn:        randomIndex,
	}
}

// Allocate picks random word pairs until it finds one that is not assigned.
func (a *NameAllocator) Allocate() (string, error) {
	if len(a.words) < 2 {
		return "", ErrNamesExhausted
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		first := a.intn(len(a.words))
		second := a.intn(len(a.words) - 1)
		if second >= first {
			second++
		}

		name := a.words[first] + a.words[second]
		if _, taken := a.assigned[name]; taken {
			continue
		}
		a.assigned[name] = struct{}{}
		return name, nil
	}

	return "", ErrNamesExhausted
}

// Release returns a name to the pool.
func (a *NameAllocator) Release(name string) {
	a.mu.Lock()
	delete(a.assigned, name)
	a.mu.Unlock()
}

// InUse reports how many names are currently assigned.
func (a *NameAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.assigned)
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("Failed to generate random index:", err)
	}
	return int(n.Int64())
}
