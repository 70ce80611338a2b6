package metrics

import (
	"encoding/json"
	"math"

	"github.com/akshitanchan/marketsim/internal/marketlog"
)

// LogReturns returns ln(p[i]/p[i-1]) for consecutive prices. Zero returns
// are dropped, as are pairs with a non-positive price.
func LogReturns(prices []float64) []float64 {
	var out []float64
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		r := math.Log(prices[i] / prices[i-1])
		if r != 0 {
			out = append(out, r)
		}
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// Kurtosis returns the (non-excess) sample kurtosis m4/m2^2; a Gaussian
// scores 3. NaN when there are fewer than two points or zero variance.
func Kurtosis(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	var m2, m4 float64
	for _, x := range xs {
		d := (x - m) * (x - m)
		m2 += d
		m4 += d * d
	}
	n := float64(len(xs))
	m2 /= n
	m4 /= n
	if m2 == 0 {
		return math.NaN()
	}
	return m4 / (m2 * m2)
}

// ACF returns autocorrelations for lags 0..nlags (capped at len-1). Lag 0 is
// always 1. Returns nil for constant or too-short series.
func ACF(xs []float64, nlags int) []float64 {
	n := len(xs)
	if n < 2 {
		return nil
	}
	if nlags > n-1 {
		nlags = n - 1
	}
	m := mean(xs)
	var denom float64
	for _, x := range xs {
		denom += (x - m) * (x - m)
	}
	if denom == 0 {
		return nil
	}

	out := make([]float64, nlags+1)
	for k := 0; k <= nlags; k++ {
		var num float64
		for t := 0; t+k < n; t++ {
			num += (xs[t] - m) * (xs[t+k] - m)
		}
		out[k] = num / denom
	}
	return out
}

// Correlation is the Pearson correlation of two equal-length series.
// NaN if lengths differ, fewer than two points, or either is constant.
func Correlation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return math.NaN()
	}
	ma, mb := mean(a), mean(b)
	var cov, va, vb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(va*vb)
}

// Facts summarizes the distributional properties of mid returns.
type Facts struct {
	Snapshots    int       `json:"snapshots"`
	DefinedMids  int       `json:"defined_mids"`
	Returns      int       `json:"returns"`
	MeanReturn   float64   `json:"mean_return"`
	StdReturn    float64   `json:"std_return"`
	Kurtosis     float64   `json:"kurtosis"`
	AbsReturnACF []float64 `json:"abs_return_acf"` // lags 1..n
}

// MarshalJSON encodes an undefined kurtosis as null.
func (f Facts) MarshalJSON() ([]byte, error) {
	type plain Facts
	out := struct {
		plain
		Kurtosis *float64 `json:"kurtosis"`
	}{plain: plain(f)}
	if !math.IsNaN(f.Kurtosis) {
		out.Kurtosis = &f.Kurtosis
	}
	return json.Marshal(out)
}

// DefaultACFLags matches the usual volatility-clustering plot.
const DefaultACFLags = 20

// StylizedFacts computes return statistics from the logged mid series.
func StylizedFacts(l *marketlog.Logger, lags int) Facts {
	mids := l.MidSeries()
	returns := LogReturns(mids)
	f := Facts{
		Snapshots:   len(l.L1()),
		DefinedMids: len(mids),
		Returns:     len(returns),
		MeanReturn:  mean(returns),
		StdReturn:   stddev(returns),
		Kurtosis:    Kurtosis(returns),
	}

	abs := make([]float64, len(returns))
	for i, r := range returns {
		abs[i] = math.Abs(r)
	}
	if acf := ACF(abs, lags); len(acf) > 1 {
		f.AbsReturnACF = acf[1:]
	}
	return f
}

// InventoryCorrelation correlates two agents' logged inventories, a simple
// herding measure. Series are truncated to the shorter length.
func InventoryCorrelation(l *marketlog.Logger, a, b string) float64 {
	xa, xb := l.InventorySeries(a), l.InventorySeries(b)
	n := min(len(xa), len(xb))
	fa := make([]float64, n)
	fb := make([]float64, n)
	for i := 0; i < n; i++ {
		fa[i] = float64(xa[i])
		fb[i] = float64(xb[i])
	}
	return Correlation(fa, fb)
}
