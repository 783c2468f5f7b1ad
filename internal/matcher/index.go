package matcher

import (
	"sort"

	"buckets-migrator/internal/models"
)

// CandidateIndex lists, per amount, the sequence positions of every
// uncategorized transaction. Positions are ascending so a forward scan is a
// binary search followed by a walk over the remaining entries.
type CandidateIndex struct {
	byAmount map[int64][]int
}

// NewCandidateIndex builds the index from the ordered transaction sequence
func NewCandidateIndex(transactions []*models.RawTransaction) *CandidateIndex {
	index := &CandidateIndex{byAmount: make(map[int64][]int)}
	for pos, tx := range transactions {
		if tx.HasCategory() {
			continue
		}
		index.byAmount[tx.Amount] = append(index.byAmount[tx.Amount], pos)
	}
	return index
}

// NextCandidate returns the first position after `after` holding an
// uncategorized transaction with the given amount that is not excluded.
func (ci *CandidateIndex) NextCandidate(after int, amount int64, excluded ExclusionSet) (int, bool) {
	positions := ci.byAmount[amount]
	start := sort.SearchInts(positions, after+1)
	for _, pos := range positions[start:] {
		if !excluded.Contains(pos) {
			return pos, true
		}
	}
	return 0, false
}

// Size returns the number of indexed positions
func (ci *CandidateIndex) Size() int {
	n := 0
	for _, positions := range ci.byAmount {
		n += len(positions)
	}
	return n
}

// ExclusionSet holds the positions consumed as counter-legs.
type ExclusionSet map[int]struct{}

// Add marks a position as consumed
func (s ExclusionSet) Add(pos int) { s[pos] = struct{}{} }

// Contains reports whether a position was consumed
func (s ExclusionSet) Contains(pos int) bool {
	_, ok := s[pos]
	return ok
}
