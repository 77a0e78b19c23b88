package optimizer

import (
	"context"
	"math"
	"sort"
)

const ctxCheckMask = 0xfff

// BranchAndBound is the exact solver. Win probability rises strictly with the
// ratio pts_added/pts_given, so it runs Dinkelbach's parametric iteration for
// 0-1 fractional programs: each step maximizes sum((a_i - lambda*g_i) * x_i) with a
// depth-first search and moves lambda to the ratio of the step's optimum, until
// no roster beats the current ratio.
type BranchAndBound struct {
	MaxIterations int
}

func NewBranchAndBound() *BranchAndBound {
	return &BranchAndBound{MaxIterations: 100}
}

func (b *BranchAndBound) Name() string {
	return "branch_and_bound"
}

func (b *BranchAndBound) Solve(ctx context.Context, p *Problem, obs Observer) ([]bool, error) {
	if obs == nil {
		obs = noopObserver{}
	}
	maxIter := b.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}

	best := &incumbent{p: p, obs: obs, value: math.Inf(-1)}
	weights := make([]float64, p.Len())

	lambda := 0.0
	var current []bool
	for iter := 0; iter < maxIter; iter++ {
		for i := range weights {
			weights[i] = p.Added[i] - lambda*p.Given[i]
		}

		x, value, err := maximizeLinear(ctx, p, weights, current, best.offer)
		if err != nil {
			return nil, err
		}

		added, given := p.Totals(x)
		if current != nil && value <= Tolerance*(1+added) {
			break
		}
		current = x
		if given == 0 {
			break
		}
		next := added / given
		if next <= lambda {
			break
		}
		lambda = next
	}

	best.offer(current)
	return best.x, nil
}

// FindFeasible returns any selection satisfying the problem constraints.
func FindFeasible(ctx context.Context, p *Problem) ([]bool, error) {
	x, _, err := maximizeLinear(ctx, p, make([]float64, p.Len()), nil, nil)
	return x, err
}

// incumbent keeps the best roster by win probability across every search step.
type incumbent struct {
	p     *Problem
	obs   Observer
	x     []bool
	value float64
}

func (in *incumbent) offer(x []bool) {
	if x == nil {
		return
	}
	v := score(in.p.Totals(x))
	if in.x == nil || v > in.value {
		in.x = append([]bool(nil), x...)
		in.value = v
		in.obs.OnProgress(v)
	}
}

type linearSearch struct {
	ctx context.Context
	p   *Problem
	w   []float64

	free    []int
	prefixW []float64
	// suffix sums indexed [d][k]: k largest/smallest values among free[d:]
	topCost    [][]float64
	bottomCost [][]float64
	topPoss    [][]float64

	x           []bool
	bestX       []bool
	bestVal     float64
	onIncumbent func([]bool)
	nodes       int
	err         error
}

// maximizeLinear solves max sum(w_i*x_i) under the problem constraints. seed, when
// feasible, becomes the starting incumbent so only strictly better rosters are explored.
func maximizeLinear(ctx context.Context, p *Problem, w []float64, seed []bool, onIncumbent func([]bool)) ([]bool, float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	n := p.Len()
	s := &linearSearch{
		ctx:         ctx,
		p:           p,
		w:           w,
		x:           make([]bool, n),
		onIncumbent: onIncumbent,
	}

	count := 0
	var cost, poss, val float64
	for i := 0; i < n; i++ {
		if p.Pinned[i] {
			s.x[i] = true
			count++
			cost += p.Cost[i]
			poss += p.Possessions[i]
			val += w[i]
		} else {
			s.free = append(s.free, i)
		}
	}
	if count > p.MaxSize || cost > p.SalaryCeiling+Tolerance {
		return nil, 0, ErrInfeasible
	}

	sort.SliceStable(s.free, func(a, b int) bool {
		return w[s.free[a]] > w[s.free[b]]
	})
	s.prefixW = make([]float64, len(s.free)+1)
	for j, i := range s.free {
		s.prefixW[j+1] = s.prefixW[j] + w[i]
	}
	room := p.MaxSize - count
	s.topCost = suffixExtremes(p.Cost, s.free, room, true)
	s.bottomCost = suffixExtremes(p.Cost, s.free, room, false)
	s.topPoss = suffixExtremes(p.Possessions, s.free, room, true)

	if seed != nil && p.Feasible(seed) {
		s.bestX = append([]bool(nil), seed...)
		for i, selected := range seed {
			if selected {
				s.bestVal += w[i]
			}
		}
	}

	s.dfs(0, count, cost, poss, val)
	if s.err != nil {
		return nil, 0, s.err
	}
	if s.bestX == nil {
		return nil, 0, ErrInfeasible
	}
	return s.bestX, s.bestVal, nil
}

// dfs enumerates supersets of the current selection that add free players at
// positions >= d.
func (s *linearSearch) dfs(d, count int, cost, poss, val float64) {
	if s.err != nil {
		return
	}
	s.nodes++
	if s.nodes&ctxCheckMask == 0 {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return
		}
	}

	p := s.p
	m := len(s.free)
	need := p.MinSize - count
	if need < 0 {
		need = 0
	}
	room := p.MaxSize - count
	if avail := m - d; room > avail {
		room = avail
	}
	if need > room {
		return
	}

	if cost+s.bottomCost[d][need] > p.SalaryCeiling+Tolerance {
		return
	}
	if cost+s.topCost[d][room] < p.SalaryFloor-Tolerance {
		return
	}
	if poss+s.topPoss[d][room] < p.MinPossessions-Tolerance {
		return
	}
	if s.bestX != nil {
		bound := math.Inf(-1)
		for k := need; k <= room; k++ {
			if b := s.prefixW[d+k] - s.prefixW[d]; b > bound {
				bound = b
			}
		}
		if val+bound <= s.bestVal+Tolerance {
			return
		}
	}

	if need == 0 && cost >= p.SalaryFloor-Tolerance && poss >= p.MinPossessions-Tolerance {
		if s.bestX == nil || val > s.bestVal+Tolerance {
			s.bestX = append([]bool(nil), s.x...)
			s.bestVal = val
			if s.onIncumbent != nil {
				s.onIncumbent(s.bestX)
			}
		}
	}
	if room == 0 {
		return
	}

	for j := d; j < m; j++ {
		if m-j < need || s.err != nil {
			return
		}
		i := s.free[j]
		s.x[i] = true
		s.dfs(j+1, count+1, cost+p.Cost[i], poss+p.Possessions[i], val+s.w[i])
		s.x[i] = false
	}
}

// suffixExtremes returns, for every suffix order[d:], cumulative sums of its k
// largest (desc) or smallest values, k up to limit.
func suffixExtremes(values []float64, order []int, limit int, desc bool) [][]float64 {
	m := len(order)
	out := make([][]float64, m+1)
	out[m] = []float64{0}
	if limit < 0 {
		limit = 0
	}

	kept := make([]float64, 0, limit+1)
	for d := m - 1; d >= 0; d-- {
		v := values[order[d]]
		pos := sort.Search(len(kept), func(i int) bool {
			if desc {
				return kept[i] < v
			}
			return kept[i] > v
		})
		kept = append(kept, 0)
		copy(kept[pos+1:], kept[pos:])
		kept[pos] = v
		if len(kept) > limit {
			kept = kept[:limit]
		}

		sums := make([]float64, len(kept)+1)
		for i, c := range kept {
			sums[i+1] = sums[i] + c
		}
		out[d] = sums
	}
	return out
}
