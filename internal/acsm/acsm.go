package acsm

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrNotImplemented is returned by Search when the machine was compiled in
// KindTrie mode: a plain keyword trie has no failure links and this
// implementation does not attempt to search one directly (see spec.md §9,
// "FSA_TRIE search is a no-op... recommends returning a not-implemented
// error instead").
var ErrNotImplemented = errors.New("acsm: TRIE automaton does not support search")

// ErrAlreadyCompiled is returned by AddPattern once Compile has run;
// pattern insertion after compile is unsupported (spec.md §4.3 "Failure
// semantics").
var ErrAlreadyCompiled = errors.New("acsm: cannot add pattern after compile")

// Match is one reported occurrence of a pattern in the scanned input.
// Start and End are both measured in bytes from the beginning of the input
// that was passed to Search, End exclusive.
type Match struct {
	ID    int
	Start int
	End   int
}

// ACSM is a compiled (or compiling) Aho-Corasick string-matching machine.
type ACSM struct {
	cfg      Config
	patterns []*Pattern

	// build-time keyword trie: trie[state] maps a byte to a child state.
	// Only states with at least one explicit trie edge appear in full.
	trie []map[byte]int32

	// fail[state] is the NFA failure link, valid for every state once
	// Compile has run.
	fail []int32

	// matchIDs[state] lists indices into patterns for every pattern that
	// terminates at state, including patterns inherited via failure links.
	matchIDs [][]int

	rows     []Row
	compiled bool
}

// New creates an empty machine with state 0 (the root) already allocated.
func New(cfg Config) *ACSM {
	m := &ACSM{
		cfg:      cfg,
		trie:     []map[byte]int32{{}},
		fail:     []int32{0},
		matchIDs: [][]int{nil},
	}
	return m
}

// AddPattern registers a pattern and returns its id. orig is matched
// case-sensitively unless nocase is set, in which case the automaton's
// upper-cased comparison alone decides a match.
func (m *ACSM) AddPattern(orig []byte, nocase bool) (int, error) {
	if m.compiled {
		return 0, ErrAlreadyCompiled
	}
	id := len(m.patterns)
	p := &Pattern{
		ID:     id,
		Orig:   append([]byte(nil), orig...),
		Upper:  upperCopy(orig),
		NoCase: nocase,
	}
	m.patterns = append(m.patterns, p)
	m.insert(p)
	return id, nil
}

// insert walks (or extends) the trie for one pattern: stage 1+2 of
// spec.md §4.3's build pipeline.
func (m *ACSM) insert(p *Pattern) {
	state := int32(0)
	for _, b := range p.Upper {
		next, ok := m.trie[state][b]
		if !ok {
			next = m.newState()
			m.trie[state][b] = next
		}
		state = next
	}
	m.matchIDs[state] = append(m.matchIDs[state], p.ID)
}

func (m *ACSM) newState() int32 {
	id := int32(len(m.trie))
	m.trie = append(m.trie, map[byte]int32{})
	m.fail = append(m.fail, 0)
	m.matchIDs = append(m.matchIDs, nil)
	return id
}

// gotoTrie returns the explicit trie transition for (state, b), or
// failState if none exists. State 0 never returns failState: a root miss
// is implicitly a self-loop to 0, matching the invariant that no failure
// link points to FAIL from state 0.
func (m *ACSM) gotoTrie(state int32, b byte) int32 {
	if next, ok := m.trie[state][b]; ok {
		return next
	}
	if state == 0 {
		return 0
	}
	return failState
}

// Compile runs stages 3-6 of spec.md §4.3: the NFA failure function,
// optional NFA->DFA conversion, and row compaction.
func (m *ACSM) Compile() error {
	if m.compiled {
		return nil
	}

	if err := m.buildFailureFunction(); err != nil {
		return err
	}

	switch m.cfg.Kind {
	case KindDFA:
		full := m.buildDFATransitions()
		m.rows = m.compactAll(full, 0)
	case KindNFA:
		full := m.buildNFATransitionArrays()
		m.rows = m.compactAll(full, failState)
	case KindTrie:
		full := m.buildNFATransitionArrays()
		m.rows = m.compactAll(full, failState)
	default:
		return fmt.Errorf("acsm: unknown automaton kind %d", m.cfg.Kind)
	}

	m.compiled = true
	return nil
}

// buildFailureFunction is a breadth-first traversal of the trie computing
// fail(s) for every state and unioning inherited match lists onto s, per
// spec.md §4.3 stage 3.
func (m *ACSM) buildFailureFunction() error {
	n := len(m.trie)
	depth := make([]int, n)

	var queue []int32
	// Depth-1 states: direct children of root. Their fail is 0 by
	// definition.
	for b := 0; b < 256; b++ {
		if next, ok := m.trie[0][byte(b)]; ok {
			m.fail[next] = 0
			depth[next] = 1
			queue = append(queue, next)
		}
	}

	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]

		for b := 0; b < 256; b++ {
			s, ok := m.trie[r][byte(b)]
			if !ok {
				continue
			}
			depth[s] = depth[r] + 1
			queue = append(queue, s)

			f := m.fail[r]
			for {
				if target, ok := m.trie[f][byte(b)]; ok {
					m.fail[s] = target
					break
				}
				if f == 0 {
					m.fail[s] = 0
					break
				}
				f = m.fail[f]
			}
			m.matchIDs[s] = append(m.matchIDs[s], m.matchIDs[m.fail[s]]...)
		}
	}
	_ = n
	return nil
}

// buildDFATransitions runs stage 4: for every state and every symbol, if
// the trie has no explicit edge, copy the transition from fail(state) on
// the same symbol, so at runtime no failure-link chain is ever needed.
// States are processed in breadth-first (depth) order so fail(state)'s row
// is always already resolved.
func (m *ACSM) buildDFATransitions() [][]int32 {
	n := len(m.trie)
	full := make([][]int32, n)
	full[0] = make([]int32, 256)
	for b := 0; b < 256; b++ {
		full[0][b] = m.gotoTrie(0, byte(b))
	}

	var queue []int32
	for b := 0; b < 256; b++ {
		if next, ok := m.trie[0][byte(b)]; ok {
			queue = append(queue, next)
		}
	}

	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		if full[r] != nil {
			continue
		}
		row := make([]int32, 256)
		for b := 0; b < 256; b++ {
			if next, ok := m.trie[r][byte(b)]; ok {
				row[b] = next
			} else {
				row[b] = full[m.fail[r]][b]
			}
		}
		full[r] = row
		for b := 0; b < 256; b++ {
			if next, ok := m.trie[r][byte(b)]; ok {
				queue = append(queue, next)
			}
		}
	}

	return full
}

// buildNFATransitionArrays expands the explicit trie edges into full
// per-state arrays so compactAll can share the same compaction code with
// the DFA path; missing entries are left as failState.
func (m *ACSM) buildNFATransitionArrays() [][]int32 {
	n := len(m.trie)
	full := make([][]int32, n)
	for s := 0; s < n; s++ {
		row := make([]int32, 256)
		for b := 0; b < 256; b++ {
			row[b] = m.gotoTrie(int32(s), byte(b))
		}
		full[s] = row
	}
	return full
}

func (m *ACSM) compactAll(full [][]int32, missDefault int32) []Row {
	rows := make([]Row, len(full))
	for s, row := range full {
		rows[s] = compactRow(s, row, missDefault, len(m.matchIDs[s]) > 0, m.cfg)
	}
	return rows
}

// missDefault returns the "no transition" sentinel for state s under the
// machine's configured kind: state 0 never fails, and DFA mode never
// fails anywhere once compiled.
func (m *ACSM) missDefault(state int32) int32 {
	if state == 0 || m.cfg.Kind == KindDFA {
		return 0
	}
	return failState
}

// nextState resolves the transition for b out of state, chasing failure
// links in NFA/TRIE-built rows until a non-FAIL transition is found (a
// no-op loop in DFA mode, whose rows never return FAIL).
func (m *ACSM) nextState(state int32, b byte) int32 {
	for {
		next := decodeNext(m.rows[state], b, m.missDefault(state))
		if next != failState {
			return next
		}
		state = m.fail[state]
	}
}

// Search scans input through the compiled machine, calling report for
// every verified match in the order the automaton discovers them. It stops
// early if report returns false.
func (m *ACSM) Search(input []byte, report func(Match) bool) error {
	if !m.compiled {
		return errors.New("acsm: Search called before Compile")
	}
	if m.cfg.Kind == KindTrie {
		return ErrNotImplemented
	}

	state := int32(0)
	for pos, raw := range input {
		state = m.nextState(state, xlatcase[raw])
		currentPosition := pos + 1

		row := m.rows[state]
		if !row.Match {
			continue
		}
		for _, pid := range m.matchIDs[state] {
			p := m.patterns[pid]
			start := currentPosition - p.Len()
			if start < 0 {
				continue
			}
			if !p.NoCase && !bytes.Equal(p.Orig, input[start:currentPosition]) {
				continue
			}
			if !report(Match{ID: p.ID, Start: start, End: currentPosition}) {
				return nil
			}
		}
	}
	return nil
}

// NumStates returns the number of states allocated during build, including
// the root.
func (m *ACSM) NumStates() int {
	return len(m.trie)
}

// RowFormatOf returns the compiled format of the given state's row; only
// valid after Compile.
func (m *ACSM) RowFormatOf(state int) RowFormat {
	return m.rows[state].Format
}

// HasMatch reports whether state has a non-empty match list; only valid
// after Compile. It is the row[1] match flag from spec.md §4.3 stage 6.
func (m *ACSM) HasMatch(state int) bool {
	return m.rows[state].Match
}
