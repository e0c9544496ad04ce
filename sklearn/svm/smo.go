package svm

import "math"

// tau replaces non-positive curvature in the two-variable subproblem.
const tau = 1e-12

// smoSolver solves the C-SVC dual
//
//	min 0.5 a'Qa - e'a  s.t.  y'a = 0, 0 <= a_i <= C_i
//
// with Q_ij = y_i y_j K_ij, selecting working sets by second-order information.
type smoSolver struct {
	cache *rowCache
	y     []float64 // +1 / -1
	C     []float64
	eps   float64

	alpha []float64
	grad  []float64
}

func (s *smoSolver) upper(t int) bool { return s.alpha[t] >= s.C[t] }
func (s *smoSolver) lower(t int) bool { return s.alpha[t] <= 0 }

// solve runs until the maximal violating pair is within eps or maxIter is
// reached. It returns the number of iterations and whether it converged.
func (s *smoSolver) solve(maxIter int) (int, bool) {
	n := len(s.y)
	s.alpha = make([]float64, n)
	s.grad = make([]float64, n)
	for t := range s.grad {
		s.grad[t] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		i, j, ok := s.selectWorkingSet()
		if !ok {
			return iter, true
		}
		s.update(i, j)
	}
	return maxIter, false
}

func (s *smoSolver) selectWorkingSet() (int, int, bool) {
	gmax, gmax2 := math.Inf(-1), math.Inf(-1)
	iIdx, jIdx := -1, -1
	for t := range s.y {
		if s.y[t] > 0 {
			if !s.upper(t) && -s.grad[t] >= gmax {
				gmax, iIdx = -s.grad[t], t
			}
		} else if !s.lower(t) && s.grad[t] >= gmax {
			gmax, iIdx = s.grad[t], t
		}
	}
	if iIdx < 0 {
		return -1, -1, false
	}

	Ki := s.cache.row(iIdx)
	objMin := math.Inf(1)
	for t := range s.y {
		var gradDiff float64
		if s.y[t] > 0 {
			if s.lower(t) {
				continue
			}
			gmax2 = math.Max(gmax2, s.grad[t])
			gradDiff = gmax + s.grad[t]
		} else {
			if s.upper(t) {
				continue
			}
			gmax2 = math.Max(gmax2, -s.grad[t])
			gradDiff = gmax - s.grad[t]
		}
		if gradDiff <= 0 {
			continue
		}
		// K_ii = 1 for the RBF kernel, so the curvature is 2 - 2K_it for both labels
		quad := 2 - 2*Ki[t]
		if quad <= 0 {
			quad = tau
		}
		if obj := -gradDiff * gradDiff / quad; obj <= objMin {
			objMin, jIdx = obj, t
		}
	}
	if gmax+gmax2 < s.eps || jIdx < 0 {
		return -1, -1, false
	}
	return iIdx, jIdx, true
}

func (s *smoSolver) update(i, j int) {
	Ki, Kj := s.cache.row(i), s.cache.row(j)
	yi, yj := s.y[i], s.y[j]
	Ci, Cj := s.C[i], s.C[j]
	ai, aj := s.alpha[i], s.alpha[j]
	oldI, oldJ := ai, aj

	if yi != yj {
		quad := 2 - 2*Ki[j]
		if quad <= 0 {
			quad = tau
		}
		delta := (-s.grad[i] - s.grad[j]) / quad
		diff := ai - aj
		ai += delta
		aj += delta
		if diff > 0 {
			if aj < 0 {
				aj, ai = 0, diff
			}
		} else if ai < 0 {
			ai, aj = 0, -diff
		}
		if diff > Ci-Cj {
			if ai > Ci {
				ai, aj = Ci, Ci-diff
			}
		} else if aj > Cj {
			aj, ai = Cj, Cj+diff
		}
	} else {
		quad := 2 - 2*Ki[j]
		if quad <= 0 {
			quad = tau
		}
		delta := (s.grad[i] - s.grad[j]) / quad
		sum := ai + aj
		ai -= delta
		aj += delta
		if sum > Ci {
			if ai > Ci {
				ai, aj = Ci, sum-Ci
			}
		} else if aj < 0 {
			aj, ai = 0, sum
		}
		if sum > Cj {
			if aj > Cj {
				aj, ai = Cj, sum-Cj
			}
		} else if ai < 0 {
			ai, aj = 0, sum
		}
	}
	s.alpha[i], s.alpha[j] = ai, aj

	di, dj := ai-oldI, aj-oldJ
	for t := range s.grad {
		s.grad[t] += s.y[t] * (yi*Ki[t]*di + yj*Kj[t]*dj)
	}
}

// rho returns the offset b such that f(x) = sum a_i y_i K(x_i, x) - rho.
func (s *smoSolver) rho() float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	var sumFree float64
	nFree := 0
	for t := range s.y {
		yG := s.y[t] * s.grad[t]
		switch {
		case s.upper(t):
			if s.y[t] < 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		case s.lower(t):
			if s.y[t] > 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		default:
			nFree++
			sumFree += yG
		}
	}
	if nFree > 0 {
		return sumFree / float64(nFree)
	}
	return (ub + lb) / 2
}
