package optimizer

import (
	"context"
	"math"
	"math/rand"
)

// Annealing is a seeded simulated-annealing solver. It starts from any feasible
// roster and only walks through feasible rosters, so its answer always satisfies
// the constraints but is not guaranteed optimal.
type Annealing struct {
	Seed               int64
	Iterations         int
	InitialTemperature float64
	Cooling            float64
}

func NewAnnealing(seed int64, iterations int) *Annealing {
	return &Annealing{
		Seed:               seed,
		Iterations:         iterations,
		InitialTemperature: 0.05,
		Cooling:            0.9995,
	}
}

func (a *Annealing) Name() string {
	return "annealing"
}

type annealState struct {
	x     []bool
	count int
	cost  float64
	poss  float64
	added float64
	given float64
}

func (st *annealState) toggle(p *Problem, i int) {
	sign := 1.0
	if st.x[i] {
		sign = -1
		st.count--
	} else {
		st.count++
	}
	st.x[i] = !st.x[i]
	st.cost += sign * p.Cost[i]
	st.poss += sign * p.Possessions[i]
	st.added += sign * p.Added[i]
	st.given += sign * p.Given[i]
}

func (st *annealState) feasible(p *Problem) bool {
	return st.count >= p.MinSize && st.count <= p.MaxSize &&
		st.cost <= p.SalaryCeiling+Tolerance &&
		st.cost >= p.SalaryFloor-Tolerance &&
		st.poss >= p.MinPossessions-Tolerance
}

func (a *Annealing) Solve(ctx context.Context, p *Problem, obs Observer) ([]bool, error) {
	if obs == nil {
		obs = noopObserver{}
	}

	start, err := FindFeasible(ctx, p)
	if err != nil {
		return nil, err
	}

	st := &annealState{x: append([]bool(nil), start...)}
	for i, selected := range start {
		if selected {
			st.count++
			st.cost += p.Cost[i]
			st.poss += p.Possessions[i]
			st.added += p.Added[i]
			st.given += p.Given[i]
		}
	}

	var free []int
	for i := range p.Pinned {
		if !p.Pinned[i] {
			free = append(free, i)
		}
	}

	best := &incumbent{p: p, obs: obs, value: math.Inf(-1)}
	best.offer(st.x)
	if len(free) == 0 {
		return best.x, nil
	}

	rng := rand.New(rand.NewSource(a.Seed))
	temp := a.InitialTemperature
	if temp <= 0 {
		temp = 0.05
	}
	cooling := a.Cooling
	if cooling <= 0 || cooling >= 1 {
		cooling = 0.9995
	}
	current := score(st.added, st.given)

	for iter := 0; iter < a.Iterations; iter++ {
		if iter&0xff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		// one toggle adds or removes; a swap trades i for a player on the other side
		i := free[rng.Intn(len(free))]
		j := -1
		if rng.Intn(2) == 0 {
			j = swapPartner(st.x, free, i, rng.Intn(len(free)))
		}
		st.toggle(p, i)
		if j >= 0 {
			st.toggle(p, j)
		}

		if st.feasible(p) {
			next := score(st.added, st.given)
			if delta := next - current; delta >= 0 || rng.Float64() < math.Exp(delta/temp) {
				current = next
				if next > best.value {
					best.offer(st.x)
				}
				temp *= cooling
				continue
			}
		}

		if j >= 0 {
			st.toggle(p, j)
		}
		st.toggle(p, i)
		temp *= cooling
	}

	return best.x, nil
}

// swapPartner returns the first free player from offset onward whose selection
// differs from i's, or -1 when every free player is on i's side.
func swapPartner(x []bool, free []int, i, offset int) int {
	for k := range free {
		j := free[(offset+k)%len(free)]
		if x[j] != x[i] {
			return j
		}
	}
	return -1
}
