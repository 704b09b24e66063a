package relay

import (
	"errors"
	"sync"
	"testing"
	"unicode"
)

func TestAllocateUsesTwoDistinctWords(t *testing.T) {
	a := NewNameAllocator(0)

	words := make(map[string]bool, len(gameNames))
	for _, w := range gameNames {
		words[w] = true
	}

	for i := 0; i < 200; i++ {
		name, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}

		first, second := splitName(name)
		if !words[first] || !words[second] {
			t.Fatalf("name %q is not built from vocabulary words (%q, %q)", name, first, second)
		}
		if first == second {
			t.Fatalf("name %q repeats a word", name)
		}
	}
}

func TestAllocateUniqueUnderConcurrency(t *testing.T) {
	a := NewNameAllocator(DefaultMaxNameAttempts)

	const workers = 16
	const perWorker = 50

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				name, err := a.Allocate()
				if err != nil {
					t.Errorf("Allocate: %v", err)
					return
				}
				mu.Lock()
				if seen[name] {
					t.Errorf("name %q assigned twice", name)
				}
				seen[name] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if got, want := a.InUse(), workers*perWorker; got != want {
		t.Errorf("InUse = %d, want %d", got, want)
	}
}

func TestAllocateExhaustion(t *testing.T) {
	// Two words give exactly two names: AB and BA.
	a := NewNameAllocatorWithWords([]string{"Ninja", "Blaze"}, 100)

	got := make(map[string]bool)
	for i := 0; i < 2; i++ {
		name, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		got[name] = true
	}
	if !got["NinjaBlaze"] || !got["BlazeNinja"] {
		t.Fatalf("allocated %v, want both NinjaBlaze and BlazeNinja", got)
	}

	if _, err := a.Allocate(); !errors.Is(err, ErrNamesExhausted) {
		t.Fatalf("third Allocate error = %v, want ErrNamesExhausted", err)
	}

	a.Release("NinjaBlaze")
	name, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate after Release: %v", err)
	}
	if name != "NinjaBlaze" {
		t.Errorf("Allocate after Release = %q, want NinjaBlaze", name)
	}
}

func TestAllocateGivesUpAfterMaxAttempts(t *testing.T) {
	a := NewNameAllocatorWithWords([]string{"Ninja", "Blaze", "Storm"}, 5)

	calls := 0
	a.intn = func(n int) int {
		calls++
		return 0
	}

	if _, err := a.Allocate(); err != nil {
		t.Fatalf("first Allocate: %v", err)
	}

	calls = 0
	if _, err := a.Allocate(); !errors.Is(err, ErrNamesExhausted) {
		t.Fatalf("Allocate error = %v, want ErrNamesExhausted", err)
	}
	// Two draws per attempt.
	if calls != 10 {
		t.Errorf("random draws = %d, want 10", calls)
	}
}

func TestReleaseUnassignedIsNoop(t *testing.T) {
	a := NewNameAllocator(0)
	a.Release("NobodyHere")
	if a.InUse() != 0 {
		t.Errorf("InUse = %d, want 0", a.InUse())
	}
}

func TestAllocateRejectsTinyVocabulary(t *testing.T) {
	a := NewNameAllocatorWithWords([]string{"Solo"}, 10)
	if _, err := a.Allocate(); !errors.Is(err, ErrNamesExhausted) {
		t.Fatalf("Allocate error = %v, want ErrNamesExhausted", err)
	}
}

// splitName splits a CamelCase two-word name at the second capital letter.
func splitName(name string) (string, string) {
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			return name[:i], name[i:]
		}
	}
	return name, ""
}
