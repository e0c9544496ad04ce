package svm

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// rbfKernel evaluates exp(-gamma * ||a - b||^2) with precomputed squared norms.
type rbfKernel struct {
	X     *mat.Dense
	norms []float64
	gamma float64
}

func newRBFKernel(X *mat.Dense, gamma float64) *rbfKernel {
	n, _ := X.Dims()
	norms := make([]float64, n)
	for i := range norms {
		row := X.RawRowView(i)
		norms[i] = floats.Dot(row, row)
	}
	return &rbfKernel{X: X, norms: norms, gamma: gamma}
}

func (k *rbfKernel) at(i, j int) float64 {
	if i == j {
		return 1
	}
	return rbf(k.X.RawRowView(i), k.norms[i], k.X.RawRowView(j), k.norms[j], k.gamma)
}

func rbf(a []float64, na float64, b []float64, nb float64, gamma float64) float64 {
	d := na + nb - 2*floats.Dot(a, b)
	if d < 0 {
		d = 0
	}
	return math.Exp(-gamma * d)
}

// scaleGamma returns 1 / (n_features * Var(X)) over every entry of X, or 1
// when X is constant.
func scaleGamma(X *mat.Dense) float64 {
	r, c := X.Dims()
	all := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		all = append(all, X.RawRowView(i)...)
	}
	_, v := stat.PopMeanVariance(all, nil)
	if v == 0 {
		return 1
	}
	return 1 / (float64(c) * v)
}

// rowCache keeps kernel rows up to a memory budget, evicting the oldest first.
type rowCache struct {
	kernel  *rbfKernel
	n       int
	maxRows int
	rows    map[int][]float64
	order   []int
}

func newRowCache(k *rbfKernel, cacheBytes int) *rowCache {
	n, _ := k.X.Dims()
	maxRows := cacheBytes / (8 * max(n, 1))
	return &rowCache{kernel: k, n: n, maxRows: max(maxRows, 2), rows: make(map[int][]float64)}
}

// row returns K(x_i, x_t) for every training sample t.
func (c *rowCache) row(i int) []float64 {
	if r, ok := c.rows[i]; ok {
		return r
	}
	var r []float64
	if len(c.order) >= c.maxRows {
		oldest := c.order[0]
		c.order = c.order[1:]
		r = c.rows[oldest]
		delete(c.rows, oldest)
	} else {
		r = make([]float64, c.n)
	}
	for t := 0; t < c.n; t++ {
		r[t] = c.kernel.at(i, t)
	}
	c.rows[i] = r
	c.order = append(c.order, i)
	return r
}
