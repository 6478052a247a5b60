package decoder

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
)

// applyRepetitionPenalty down-weights every token already present in the
// history: positive logits are divided by the penalty, negative ones
// multiplied, so the token always becomes less likely.
func applyRepetitionPenalty(logits []float32, history []int32, penalty float64) {
	if penalty == 1.0 || penalty <= 0 {
		return
	}
	p := float32(penalty)
	seen := make(map[int32]bool, len(history))
	for _, tok := range history {
		if seen[tok] || int(tok) >= len(logits) || tok < 0 {
			continue
		}
		seen[tok] = true
		if logits[tok] > 0 {
			logits[tok] /= p
		} else {
			logits[tok] *= p
		}
	}
}

// logSoftmax writes log(softmax(logits / temperature)) into dst. A
// temperature <= 0 is treated as 1. Entries at -Inf stay at -Inf.
func logSoftmax(logits []float32, temperature float64, dst []float64) {
	if temperature <= 0 {
		temperature = 1
	}

	maxVal := math.Inf(-1)
	for _, v := range logits {
		if f := float64(v) / temperature; f > maxVal {
			maxVal = f
		}
	}
	if math.IsInf(maxVal, -1) {
		for i := range dst {
			dst[i] = math.Inf(-1)
		}
		return
	}

	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v)/temperature - maxVal)
	}
	logSum := math.Log(sum) + maxVal
	for i, v := range logits {
		dst[i] = float64(v)/temperature - logSum
	}
}

// nucleusFilter keeps the smallest set of tokens whose probability mass
// reaches topP and sets the rest to -Inf. logProbs must be normalised.
func nucleusFilter(logProbs []float64, topP float64, order []int) {
	if topP <= 0 || topP >= 1 {
		return
	}

	order = order[:0]
	for i, lp := range logProbs {
		if !math.IsInf(lp, -1) {
			order = append(order, i)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(logProbs[b], logProbs[a])
	})

	var mass float64
	cut := len(order)
	for i, idx := range order {
		mass += math.Exp(logProbs[idx])
		if mass >= topP {
			cut = i + 1
			break
		}
	}
	for _, idx := range order[cut:] {
		logProbs[idx] = math.Inf(-1)
	}
}

// gumbel draws from the standard Gumbel distribution. Adding it to log
// probabilities and taking the maximum samples from the distribution.
func gumbel(rng *rand.Rand) float64 {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return -math.Log(-math.Log(u))
}

// topIndices returns the indices of the k largest finite keys in
// descending order, ties broken by lower index.
func topIndices(keys []float64, k int, out []int) []int {
	out = out[:0]
	for i, key := range keys {
		if math.IsInf(key, -1) || math.IsNaN(key) {
			continue
		}
		if len(out) == k && key <= keys[out[k-1]] {
			continue
		}
		pos := len(out)
		for pos > 0 && key > keys[out[pos-1]] {
			pos--
		}
		if len(out) < k {
			out = append(out, 0)
		}
		copy(out[pos+1:], out[pos:len(out)-1])
		out[pos] = i
	}
	return out
}

func allMasked(logits []float32) bool {
	for _, v := range logits {
		if !math.IsInf(float64(v), -1) {
			return false
		}
	}
	return true
}
