package ledger

// TipCandidate is the minimal shape the fork-choice rule needs from a
// block: its id and depth. Kept separate from chain.Block so storage can
// feed it a lightweight query result without materializing full blocks.
type TipCandidate struct {
	ID    string
	Depth uint64
}

// ChooseActive picks the active block among candidates: greatest depth,
// ties broken by lexicographically smallest id. Deterministic and total —
// every node with the same committed-block set picks the same winner. The
// caller is responsible for candidates being exactly "every block with no
// committed child" (the chain tips); in practice it is cheaper and
// equivalent to pick the greatest depth overall, since a non-tip block by
// definition has a descendant of strictly greater depth.
func ChooseActive(candidates []TipCandidate) (TipCandidate, bool) {
	var best TipCandidate
	found := false
	for _, c := range candidates {
		if !found {
			best = c
			found = true
			continue
		}
		if c.Depth > best.Depth || (c.Depth == best.Depth && c.ID < best.ID) {
			best = c
		}
	}
	return best, found
}
