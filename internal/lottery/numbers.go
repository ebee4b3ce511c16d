package lottery

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"lottofun/internal/apperr"
)

const (
	NumberCount = 5
	MinNumber   = 1
	MaxNumber   = 49
)

const fingerprintLen = 32

// NumberSet is a validated lottery selection: exactly NumberCount distinct
// integers in [MinNumber, MaxNumber], held sorted ascending so that the same
// combination always serializes identically.
type NumberSet []int

// New validates and canonicalizes a raw selection. The input slice is not
// modified.
func New(numbers []int) (NumberSet, error) {
	if len(numbers) == 0 {
		return nil, apperr.Validationf("numbers cannot be empty")
	}
	if len(numbers) != NumberCount {
		return nil, apperr.Validationf("exactly %d numbers must be selected, got %d", NumberCount, len(numbers))
	}
	seen := make(map[int]bool, NumberCount)
	for _, n := range numbers {
		if n < MinNumber || n > MaxNumber {
			return nil, apperr.Validationf("all numbers must be between %d and %d, got %d", MinNumber, MaxNumber, n)
		}
		if seen[n] {
			return nil, apperr.Validationf("all numbers must be unique, %d repeats", n)
		}
		seen[n] = true
	}
	out := make(NumberSet, NumberCount)
	copy(out, numbers)
	sort.Ints(out)
	return out, nil
}

// Parse decodes the canonical comma-separated encoding. Malformed input is a
// data-corruption error: it is rejected, never truncated or repaired.
func Parse(s string) (NumberSet, error) {
	parts := strings.Split(s, ",")
	if len(parts) != NumberCount {
		return nil, fmt.Errorf("corrupt number set %q: expected %d entries, got %d", s, NumberCount, len(parts))
	}
	numbers := make([]int, 0, NumberCount)
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("corrupt number set %q: %w", s, err)
		}
		numbers = append(numbers, n)
	}
	ns, err := New(numbers)
	if err != nil {
		return nil, fmt.Errorf("corrupt number set %q: %w", s, err)
	}
	return ns, nil
}

// String returns the canonical encoding: sorted, comma-separated.
func (s NumberSet) String() string {
	parts := make([]string, len(s))
	for i, n := range s {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// Fingerprint is a truncated SHA-256 of the canonical encoding. Uniqueness is
// scoped per (user, draw) by the storage key, not by the hash itself.
func (s NumberSet) Fingerprint() string {
	sum := sha256.Sum256([]byte(s.String()))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// MatchCount returns the size of the intersection with other.
func (s NumberSet) MatchCount(other NumberSet) int {
	in := make(map[int]bool, len(other))
	for _, n := range other {
		in[n] = true
	}
	count := 0
	for _, n := range s {
		if in[n] {
			count++
		}
	}
	return count
}

// Random draws NumberCount unique numbers uniformly from the range using
// crypto/rand. Fairness is a business requirement here, so math/rand is not
// acceptable.
func Random() (NumberSet, error) {
	span := big.NewInt(int64(MaxNumber - MinNumber + 1))
	picked := make(map[int]bool, NumberCount)
	numbers := make([]int, 0, NumberCount)
	for len(numbers) < NumberCount {
		n, err := rand.Int(rand.Reader, span)
		if err != nil {
			return nil, fmt.Errorf("winning number generation: %w", err)
		}
		v := int(n.Int64()) + MinNumber
		if picked[v] {
			continue
		}
		picked[v] = true
		numbers = append(numbers, v)
	}
	return New(numbers)
}
