package explain

import "github.com/KaramelBytes/clientscope-cli/internal/model"

// pathElem is one feature on the unique decision path of the exact TreeSHAP
// recursion: zero and one are the fractions of paths flowing through when the
// feature is absent or present; weight is the permutation weight.
type pathElem struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

// extendPath appends a feature to the path at depth d and updates the weights.
func extendPath(path []pathElem, d int, zero, one float64, feature int) {
	path[d] = pathElem{feature: feature, zero: zero, one: one}
	if d == 0 {
		path[d].weight = 1
	}
	for i := d - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / float64(d+1)
		path[i].weight = zero * path[i].weight * float64(d-i) / float64(d+1)
	}
}

// unwindPath removes the element at index k from a path of depth d.
func unwindPath(path []pathElem, d, k int) {
	one, zero := path[k].one, path[k].zero
	next := path[d].weight
	for i := d - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * float64(d+1) / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(d-i)/float64(d+1)
		} else {
			path[i].weight = path[i].weight * float64(d+1) / (zero * float64(d-i))
		}
	}
	for i := k; i < d; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

// unwoundPathSum is the total weight of the path with element k removed,
// computed without modifying the path.
func unwoundPathSum(path []pathElem, d, k int) float64 {
	one, zero := path[k].one, path[k].zero
	next := path[d].weight
	var total float64
	for i := d - 1; i >= 0; i-- {
		if one != 0 {
			tmp := next * float64(d+1) / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(d-i)/float64(d+1)
		} else {
			total += path[i].weight / zero / (float64(d-i) / float64(d+1))
		}
	}
	return total
}

// treeShap adds the exact SHAP values of one tree for x into phi[feature][class].
func treeShap(m *model.Ensemble, ti int, x []float64, phi [][]float64) {
	t := m.Trees[ti]
	var recurse func(node, d int, parent []pathElem, zero, one float64, feature int)
	recurse = func(node, d int, parent []pathElem, zero, one float64, feature int) {
		path := make([]pathElem, d+1)
		copy(path, parent[:d])
		extendPath(path, d, zero, one, feature)

		n := t.Nodes[node]
		if n.IsLeaf() {
			probs := m.NodeProba(ti, node)
			for i := 1; i <= d; i++ {
				w := unwoundPathSum(path, d, i)
				scale := w * (path[i].one - path[i].zero)
				row := phi[path[i].feature]
				for c, p := range probs {
					row[c] += scale * p
				}
			}
			return
		}

		hot, cold := n.Right, n.Left
		if x[n.Feature] <= n.Threshold {
			hot, cold = n.Left, n.Right
		}
		hotZero := t.Nodes[hot].Cover / n.Cover
		coldZero := t.Nodes[cold].Cover / n.Cover
		inZero, inOne := 1.0, 1.0

		// A feature seen earlier on the path is unwound and re-split here.
		k := 0
		for ; k <= d; k++ {
			if path[k].feature == n.Feature {
				break
			}
		}
		if k != d+1 {
			inZero, inOne = path[k].zero, path[k].one
			unwindPath(path, d, k)
			d--
		}
		recurse(hot, d+1, path, hotZero*inZero, inOne, n.Feature)
		recurse(cold, d+1, path, coldZero*inZero, 0, n.Feature)
	}
	recurse(0, 0, nil, 1, 1, -1)
}

// expectedValue is the cover-weighted mean output of one tree.
func expectedValue(m *model.Ensemble, ti int) []float64 {
	t := m.Trees[ti]
	var walk func(node int) []float64
	walk = func(node int) []float64 {
		n := t.Nodes[node]
		if n.IsLeaf() {
			return append([]float64(nil), m.NodeProba(ti, node)...)
		}
		l, r := walk(n.Left), walk(n.Right)
		lw := t.Nodes[n.Left].Cover / n.Cover
		rw := t.Nodes[n.Right].Cover / n.Cover
		out := make([]float64, len(l))
		for c := range out {
			out[c] = lw*l[c] + rw*r[c]
		}
		return out
	}
	return walk(0)
}
