package trade

import (
	"context"
	"math"
	"sort"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/mrio-cli/internal/model"
	"github.com/sells-group/mrio-cli/internal/numeric"
)

// pinvRcond matches the default relative cut-off for small singular values.
const pinvRcond = 1e-15

// SolveStats summarizes one or more commodity-year solves.
type SolveStats struct {
	Pairs     int
	Failed    int
	Countries int
	Cells     int
	Clamped   int
}

func (s *SolveStats) add(o SolveStats) {
	s.Pairs += o.Pairs
	s.Failed += o.Failed
	s.Countries += o.Countries
	s.Cells += o.Cells
	s.Clamped += o.Clamped
}

// SolveMatrices runs the attribution for a consumer x producer flow matrix z
// and production vector p:
//
//	x     = p + Z·1
//	A     = Z·diag(1/x)
//	R     = pinv(I − A)·diag(p)
//	R_bar = diag((x − 1ᵀZ)/x)·R
//
// and the naive estimator diag((x − 1ᵀZ)/x)·(Z + diag(p)). Any 1/0 is
// taken as 0. An empty production vector yields nil matrices.
func SolveMatrices(z *mat.Dense, p []float64) (rbar, naive *mat.Dense, err error) {
	n := len(p)
	if n == 0 {
		return nil, nil, nil
	}
	if r, c := z.Dims(); r != n || c != n {
		return nil, nil, eris.Errorf("trade: flow matrix is %dx%d, production has %d entries", r, c, n)
	}

	x := make([]float64, n)
	exports := make([]float64, n)
	for i := range n {
		x[i] = p[i]
		for j := range n {
			x[i] += z.At(i, j)
			exports[j] += z.At(i, j)
		}
	}
	recip := make([]float64, n)
	net := make([]float64, n)
	for i := range n {
		recip[i] = numeric.SafeRecip(x[i])
		net[i] = (x[i] - exports[i]) * recip[i]
	}

	leontief := mat.NewDense(n, n, nil)
	for i := range n {
		for j := range n {
			v := -z.At(i, j) * recip[j]
			if i == j {
				v++
			}
			leontief.Set(i, j, v)
		}
	}
	inv, err := pinv(leontief)
	if err != nil {
		return nil, nil, err
	}

	rbar = mat.NewDense(n, n, nil)
	naive = mat.NewDense(n, n, nil)
	for i := range n {
		for j := range n {
			rbar.Set(i, j, net[i]*inv.At(i, j)*p[j])
			direct := z.At(i, j)
			if i == j {
				direct += p[j]
			}
			naive.Set(i, j, net[i]*direct)
		}
	}
	return rbar, naive, nil
}

// pinv computes the Moore-Penrose pseudo-inverse through an SVD, zeroing
// singular values below pinvRcond times the largest.
func pinv(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, eris.New("trade: svd did not converge")
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var smax float64
	for _, sv := range s {
		smax = math.Max(smax, sv)
	}
	cutoff := pinvRcond * smax

	vr, vc := v.Dims()
	scaled := mat.NewDense(vr, vc, nil)
	for k, sv := range s {
		if sv <= cutoff {
			continue
		}
		for i := range vr {
			scaled.Set(i, k, v.At(i, k)/sv)
		}
	}
	var out mat.Dense
	out.Mul(scaled, u.T())
	return &out, nil
}

// Solve attributes one commodity-year. flows and production must already be
// restricted to item and year. Cells are clamped at zero, rounded to two
// decimals and only nonzero cells are returned, ordered by consumer then
// producer.
func Solve(item, year int, flows []model.CommodityFlow, production []model.ProductionRecord) ([]model.AttributionResult, SolveStats, error) {
	stats := SolveStats{Pairs: 1}

	set := make(map[int]bool)
	for _, r := range production {
		if r.Value != 0 {
			set[r.Country] = true
		}
	}
	for _, f := range flows {
		set[f.Consumer] = true
		set[f.Producer] = true
	}
	if len(set) == 0 {
		return nil, stats, nil
	}
	countries := make([]int, 0, len(set))
	for c := range set {
		countries = append(countries, c)
	}
	sort.Ints(countries)
	idx := make(map[int]int, len(countries))
	for i, c := range countries {
		idx[c] = i
	}
	n := len(countries)
	stats.Countries = n

	z := mat.NewDense(n, n, nil)
	for _, f := range flows {
		if !numeric.Finite(f.Value) {
			continue
		}
		i, j := idx[f.Consumer], idx[f.Producer]
		z.Set(i, j, z.At(i, j)+f.Value)
	}
	p := make([]float64, n)
	for _, r := range production {
		if i, ok := idx[r.Country]; ok && numeric.Finite(r.Value) {
			p[i] += r.Value
		}
	}

	rbar, naive, err := SolveMatrices(z, p)
	if err != nil {
		return nil, stats, eris.Wrapf(err, "trade: solve item %d year %d", item, year)
	}

	var out []model.AttributionResult
	for i := range n {
		for j := range n {
			v := rbar.At(i, j)
			if v < 0 {
				// Sub-cent noise from the pseudo-inverse is not counted.
				if numeric.Round(v, 2) != 0 {
					stats.Clamped++
				}
				v = 0
			}
			rounded := numeric.Round(v, 2)
			if rounded == 0 {
				continue
			}
			out = append(out, model.AttributionResult{
				Consumer:      countries[i],
				Producer:      countries[j],
				Item:          item,
				Year:          year,
				Value:         rounded,
				RelativeError: numeric.SafeDiv(math.Abs(v-naive.At(i, j)), v),
			})
		}
	}
	stats.Cells = len(out)
	return out, stats, nil
}

type pairKey struct {
	Year int
	Item int
}

// SolveAll solves every (item, year) pair present in flows on a bounded
// worker pool. A failed pair is logged and contributes no rows. The result
// is ordered by year, item, consumer and producer regardless of scheduling.
func SolveAll(ctx context.Context, flows []model.CommodityFlow, production []model.ProductionRecord, workers int) ([]model.AttributionResult, SolveStats, error) {
	log := zap.L().With(zap.String("component", "mrio"))

	flowsBy := make(map[pairKey][]model.CommodityFlow)
	for _, f := range flows {
		k := pairKey{Year: f.Year, Item: f.Item}
		flowsBy[k] = append(flowsBy[k], f)
	}
	prodBy := make(map[pairKey][]model.ProductionRecord)
	for _, r := range production {
		k := pairKey{Year: r.Year, Item: r.Item}
		prodBy[k] = append(prodBy[k], r)
	}

	pairs := make([]pairKey, 0, len(flowsBy))
	for k := range flowsBy {
		pairs = append(pairs, k)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Year != pairs[j].Year {
			return pairs[i].Year < pairs[j].Year
		}
		return pairs[i].Item < pairs[j].Item
	})

	if workers <= 0 {
		workers = 1
	}
	results := make([][]model.AttributionResult, len(pairs))
	pairStats := make([]SolveStats, len(pairs))
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, k := range pairs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, st, err := Solve(k.Item, k.Year, flowsBy[k], prodBy[k])
			if err != nil {
				failed.Add(1)
				log.Error("solve failed",
					zap.Int("item", k.Item),
					zap.Int("year", k.Year),
					zap.Error(err),
				)
				return nil
			}
			results[i] = res
			pairStats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, SolveStats{}, eris.Wrap(err, "trade: solve all")
	}

	var total SolveStats
	var out []model.AttributionResult
	for i := range pairs {
		out = append(out, results[i]...)
		total.add(pairStats[i])
	}
	total.Pairs = len(pairs)
	total.Failed = int(failed.Load())
	if total.Clamped > 0 {
		log.Warn("clamped negative attribution cells", zap.Int("cells", total.Clamped))
	}
	return out, total, nil
}
