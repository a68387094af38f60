package analyzer

import "strconv"

// DerivationID reflects the depth-first position of a proof-derivation
// record within its reduction's tree. The top reduction of any single
// rule application starts at Root (a one-element [1]); descending into a
// premise prepends a 1 to the current identifier, and a sibling premise at
// the same level increments that leading digit.
type DerivationID []int

// Root returns the identifier of a top-level reduction.
func Root() DerivationID {
	return DerivationID{1}
}

// FirstPremise returns the identifier of id's first (or only) premise.
func (id DerivationID) FirstPremise() DerivationID {
	child := make(DerivationID, len(id)+1)
	child[0] = 1
	copy(child[1:], id)
	return child
}

// SecondPremise returns the identifier of id's second premise, a sibling of
// FirstPremise at the same level.
func (id DerivationID) SecondPremise() DerivationID {
	child := id.FirstPremise()
	child[0] = 2
	return child
}

func (id DerivationID) String() string {
	if len(id) == 0 {
		return ""
	}
	s := strconv.Itoa(id[0])
	for _, n := range id[1:] {
		s += "." + strconv.Itoa(n)
	}
	return s
}
