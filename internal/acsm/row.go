package acsm

// failState is the NFA sentinel meaning "no transition here, chase the
// failure link". It is never returned by a DFA row, and never returned for
// state 0 in either mode (root's goto function is total).
const failState int32 = -1

// pair is one explicit (symbol, next-state) transition, used while building
// a row before it is compacted into its final layout.
type pair struct {
	key int
	val int32
}

// Row is one compiled state's outgoing-transition row, encoded in one of
// the four layouts from spec.md §4.3. Exactly one of the payload fields is
// populated, selected by Format.
type Row struct {
	Format RowFormat
	// Match is true iff this state's match list is non-empty; checked once
	// per byte on the hot path instead of a second lookup.
	Match bool

	full   []int32 // FULL: full[b] is the next state for symbol b
	sparse []pair  // SPARSE: ascending (key, next) pairs
	band   band    // BANDED: one contiguous run
	bands  []band  // SPARSE_BANDS: several disjoint runs, ascending
}

type band struct {
	first int
	next  []int32
}

// decodeNext resolves the transition for symbol b out of row, returning
// missDefault when no explicit entry covers b.
func decodeNext(row Row, b byte, missDefault int32) int32 {
	switch row.Format {
	case FormatFull:
		return row.full[b]
	case FormatBanded:
		return row.band.decode(b, missDefault)
	case FormatSparseBands:
		for _, bd := range row.bands {
			if int(b) >= bd.first && int(b) < bd.first+len(bd.next) {
				return bd.decode(b, missDefault)
			}
		}
		return missDefault
	case FormatSparse:
		for _, p := range row.sparse {
			if p.key == int(b) {
				return p.val
			}
			if p.key > int(b) {
				break
			}
		}
		return missDefault
	default:
		return missDefault
	}
}

func (bd band) decode(b byte, missDefault int32) int32 {
	idx := int(b) - bd.first
	if idx < 0 || idx >= len(bd.next) {
		return missDefault
	}
	return bd.next[idx]
}

// compactRow builds pairs (explicit transitions that differ from
// missDefault) out of a full transition array, then encodes them in the
// layout requested by cfg.RowFormat, promoting to FULL for state 0 or when
// the transition count exceeds cfg.MaxSparseTransitions regardless of what
// was requested.
func compactRow(state int, full []int32, missDefault int32, hasMatch bool, cfg Config) Row {
	var pairs []pair
	for b, v := range full {
		if v != missDefault {
			pairs = append(pairs, pair{key: b, val: v})
		}
	}

	if state == 0 || len(pairs) > cfg.MaxSparseTransitions || cfg.RowFormat == FormatFull {
		cp := make([]int32, len(full))
		copy(cp, full)
		return Row{Format: FormatFull, Match: hasMatch, full: cp}
	}

	if len(pairs) == 0 {
		return Row{Format: FormatSparse, Match: hasMatch}
	}

	switch cfg.RowFormat {
	case FormatSparse:
		return Row{Format: FormatSparse, Match: hasMatch, sparse: pairs}
	case FormatBanded:
		return Row{Format: FormatBanded, Match: hasMatch, band: makeBand(pairs, missDefault)}
	case FormatSparseBands:
		return Row{Format: FormatSparseBands, Match: hasMatch, bands: makeBands(pairs, missDefault, cfg.MaxZeroRun)}
	default:
		return Row{Format: FormatSparse, Match: hasMatch, sparse: pairs}
	}
}

func makeBand(pairs []pair, missDefault int32) band {
	first := pairs[0].key
	last := pairs[len(pairs)-1].key
	next := make([]int32, last-first+1)
	for i := range next {
		next[i] = missDefault
	}
	for _, p := range pairs {
		next[p.key-first] = p.val
	}
	return band{first: first, next: next}
}

// makeBands splits pairs into contiguous runs, opening a new band whenever
// the gap between two consecutive keys exceeds maxZeroRun.
func makeBands(pairs []pair, missDefault int32, maxZeroRun int) []band {
	var bands []band
	start := 0
	for i := 1; i <= len(pairs); i++ {
		if i < len(pairs) {
			gap := pairs[i].key - pairs[i-1].key - 1
			if gap <= maxZeroRun {
				continue
			}
		}
		bands = append(bands, makeBand(pairs[start:i], missDefault))
		start = i
	}
	return bands
}
