package strategies

import "sort"

// treeParams bounds regression tree growth.
type treeParams struct {
	maxDepth int
	minLeaf  int
}

// treeNode is one node of a CART regression tree. Internal nodes route on
// feature <= threshold; leaves carry the mean target of their rows.
type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
}

// growTree fits a variance-reducing regression tree over the rows named
// by idx. Duplicate indices act as sample weights, which is how bootstrap
// samples are represented.
func growTree(X [][]float64, y []float64, idx []int, depth int, p treeParams) *treeNode {
	node := &treeNode{value: meanAt(y, idx)}
	if depth >= p.maxDepth || len(idx) < 2*p.minLeaf {
		return node
	}
	feature, threshold, ok := bestSplit(X, y, idx, p.minLeaf)
	if !ok {
		return node
	}
	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < p.minLeaf || len(right) < p.minLeaf {
		return node
	}
	node.feature = feature
	node.threshold = threshold
	node.left = growTree(X, y, left, depth+1, p)
	node.right = growTree(X, y, right, depth+1, p)
	return node
}

// bestSplit scans every feature for the threshold that minimises the
// summed squared error of the two children. ok is false when no split
// improves on the node itself.
func bestSplit(X [][]float64, y []float64, idx []int, minLeaf int) (int, float64, bool) {
	m := len(idx)
	total := 0.0
	total2 := 0.0
	for _, i := range idx {
		total += y[i]
		total2 += y[i] * y[i]
	}
	bestSSE := total2 - total*total/float64(m)
	if bestSSE <= 1e-12 {
		return 0, 0, false // pure node
	}

	found := false
	bestFeature := 0
	bestThreshold := 0.0
	d := len(X[idx[0]])
	order := make([]int, m)
	for f := 0; f < d; f++ {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

		sumL := 0.0
		sum2L := 0.0
		for k := 1; k < m; k++ {
			i := order[k-1]
			sumL += y[i]
			sum2L += y[i] * y[i]
			if k < minLeaf || m-k < minLeaf {
				continue
			}
			xPrev := X[order[k-1]][f]
			xNext := X[order[k]][f]
			if xPrev == xNext {
				continue
			}
			nL := float64(k)
			nR := float64(m - k)
			sumR := total - sumL
			sum2R := total2 - sum2L
			sse := (sum2L - sumL*sumL/nL) + (sum2R - sumR*sumR/nR)
			if sse < bestSSE-1e-12 {
				bestSSE = sse
				bestFeature = f
				bestThreshold = (xPrev + xNext) / 2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func (n *treeNode) predict(row []float64) float64 {
	for n.left != nil {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func meanAt(y []float64, idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}
