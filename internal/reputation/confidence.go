package reputation

import "math"

// ConfidenceInterval returns a two-sided interval for the mean of
// historical success-rate samples at the given confidence level, clamped
// to [0,1]. With fewer than two samples the point estimate is returned.
// The critical value comes from a Student-t approximation rather than an
// exact CDF; for the sample counts the pool works with the error is well
// below the noise in the rates themselves.
func ConfidenceInterval(samples []float64, level float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}

	m := mean(samples)
	if len(samples) < 2 {
		return m, m
	}

	if level <= 0 || level >= 1 {
		level = 0.95
	}

	standardError := stddev(samples) / math.Sqrt(float64(len(samples)))
	t := tCritical(level, len(samples)-1)
	margin := t * standardError

	return clamp(m-margin, 0, 1), clamp(m+margin, 0, 1)
}

// tCritical approximates the two-sided Student-t critical value via the
// normal quantile plus the Cornish-Fisher correction terms in 1/df.
func tCritical(level float64, df int) float64 {
	z := normalQuantile(0.5 + level/2)
	if df <= 0 {
		return z
	}
	d := float64(df)
	z3 := z * z * z
	z5 := z3 * z * z
	return z + (z3+z)/(4*d) + (5*z5+16*z3+3*z)/(96*d*d)
}

// normalQuantile is the Acklam rational approximation of the standard
// normal inverse CDF, accurate to ~1e-9 over (0,1).
func normalQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const low, high = 0.02425, 1 - 0.02425

	switch {
	case p < low:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > high:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}
