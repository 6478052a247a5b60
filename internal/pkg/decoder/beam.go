package decoder

import (
	"cmp"
	"math"
	"slices"
)

type beam struct {
	tokens []int32
	// score ranks live beams during search; it includes sampling noise.
	score float64
	// logProb is the cumulative model log-probability of tokens.
	logProb float64
	// scored counts tokens contributing to logProb, including EOS.
	scored int
	done   bool
}

// normalizedLogProb is logProb / scored^lengthPenalty.
func (b *beam) normalizedLogProb(lengthPenalty float64) float64 {
	if b.scored == 0 {
		return b.logProb
	}
	return b.logProb / math.Pow(float64(b.scored), lengthPenalty)
}

type candidate struct {
	parent  int
	token   int32
	score   float64
	logProb float64
	done    bool
}

func sortCandidates(cands []candidate) {
	slices.SortStableFunc(cands, func(x, y candidate) int {
		return cmp.Compare(y.score, x.score)
	})
}

// arena holds two fixed sets of live beam slots that are swapped every
// step, so token histories are reused instead of reallocated.
type arena struct {
	cur   []beam
	next  []beam
	n     int
	nextN int
}

func newArena(width, maxLen int) *arena {
	a := &arena{
		cur:  make([]beam, width),
		next: make([]beam, width),
	}
	for i := 0; i < width; i++ {
		a.cur[i].tokens = make([]int32, 0, maxLen)
		a.next[i].tokens = make([]int32, 0, maxLen)
	}
	a.n = 1
	return a
}

func (a *arena) live() []beam {
	return a.cur[:a.n]
}

func (a *arena) full() bool {
	return a.nextN == len(a.next)
}

// extend appends c's token to its parent in the next slot set.
func (a *arena) extend(c candidate) {
	parent := &a.cur[c.parent]
	nb := &a.next[a.nextN]
	nb.tokens = append(append(nb.tokens[:0], parent.tokens...), c.token)
	nb.score = c.score
	nb.logProb = c.logProb
	nb.scored = parent.scored + 1
	nb.done = false
	a.nextN++
}

func (a *arena) swap() {
	a.cur, a.next = a.next, a.cur
	a.n, a.nextN = a.nextN, 0
}

func (a *arena) bestLive(lengthPenalty float64) float64 {
	best := math.Inf(-1)
	for i := range a.live() {
		best = max(best, a.cur[i].normalizedLogProb(lengthPenalty))
	}
	return best
}

// hypotheses keeps the best finished sequences, ranked by length-normalised
// log-probability. Live beams never compete with them for slots.
type hypotheses struct {
	beams         []beam
	size          int
	lengthPenalty float64
}

func newHypotheses(size int, lengthPenalty float64) *hypotheses {
	return &hypotheses{beams: make([]beam, 0, size), size: size, lengthPenalty: lengthPenalty}
}

func (h *hypotheses) full() bool {
	return len(h.beams) == h.size
}

func (h *hypotheses) worstIndex() int {
	worst := 0
	for i := range h.beams {
		if h.beams[i].normalizedLogProb(h.lengthPenalty) < h.beams[worst].normalizedLogProb(h.lengthPenalty) {
			worst = i
		}
	}
	return worst
}

func (h *hypotheses) worst() float64 {
	if len(h.beams) == 0 {
		return math.Inf(-1)
	}
	return h.beams[h.worstIndex()].normalizedLogProb(h.lengthPenalty)
}

// add records a sequence, replacing the worst entry when the pool is full.
func (h *hypotheses) add(tokens []int32, logProb float64, scored int, done bool) {
	b := beam{logProb: logProb, scored: scored, done: done}
	if !h.full() {
		b.tokens = append(make([]int32, 0, len(tokens)), tokens...)
		h.beams = append(h.beams, b)
		return
	}
	i := h.worstIndex()
	if b.normalizedLogProb(h.lengthPenalty) <= h.beams[i].normalizedLogProb(h.lengthPenalty) {
		return
	}
	b.tokens = append(h.beams[i].tokens[:0], tokens...)
	h.beams[i] = b
}

// best returns the highest ranked sequence. Finished sequences win over
// unfinished ones with the same score.
func (h *hypotheses) best() *beam {
	var winner *beam
	for i := range h.beams {
		b := &h.beams[i]
		if winner == nil {
			winner = b
			continue
		}
		bs, ws := b.normalizedLogProb(h.lengthPenalty), winner.normalizedLogProb(h.lengthPenalty)
		if bs > ws || (bs == ws && b.done && !winner.done) {
			winner = b
		}
	}
	return winner
}
