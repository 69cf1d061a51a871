package analysis

import (
	"math"
	"slices"
)

// Quantile uses linear interpolation between closest ranks (the
// h = (n-1)p rule). It returns NaN for an empty input.
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	h := float64(len(sorted)-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// Fences are Tukey's outlier bounds.
type Fences struct {
	Q1, Q3, Lower, Upper float64
}

func TukeyFences(values []float64) Fences {
	q1 := Quantile(values, 0.25)
	q3 := Quantile(values, 0.75)
	iqr := q3 - q1
	return Fences{Q1: q1, Q3: q3, Lower: q1 - 1.5*iqr, Upper: q3 + 1.5*iqr}
}

// Outliers returns the points strictly outside the Tukey fences computed
// over all values of the dataset.
func Outliers(points []Point) []Point {
	if len(points) == 0 {
		return nil
	}
	f := TukeyFences(Values(points))
	var out []Point
	for _, p := range points {
		v := float64(p.Value)
		if v < f.Lower || v > f.Upper {
			out = append(out, p)
		}
	}
	return out
}
