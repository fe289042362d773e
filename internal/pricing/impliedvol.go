package pricing

import "math"

const (
	ivMin         = 0.01
	ivMax         = 10.0
	ivTolerance   = 1e-6
	ivMaxIter     = 100
)

// ImpliedVol solves for the volatility that reproduces marketPx under
// Black-Scholes, on [0.01, 10.0]. It tries Brent's method first and falls
// back to bisection if Brent fails to bracket or converge. If marketPx is
// below the discounted intrinsic value (no volatility can explain it),
// returns 0.
func ImpliedVol(marketPx, s, k, t, r float64, typ OptionType) float64 {
	if s <= 0 || k <= 0 || t <= 0 || marketPx <= 0 {
		return 0
	}

	discountedIntrinsic := BSPrice(s, k, t, r, 1e-9, typ)
	if marketPx < discountedIntrinsic {
		return 0
	}

	f := func(sigma float64) float64 { return BSPrice(s, k, t, r, sigma, typ) - marketPx }

	if iv, ok := brent(f, ivMin, ivMax, ivTolerance, ivMaxIter); ok {
		return iv
	}
	if iv, ok := bisect(f, ivMin, ivMax, ivTolerance, ivMaxIter); ok {
		return iv
	}
	return 0
}

// bisect is the robust fallback: requires f(lo) and f(hi) to have opposite
// signs (or one to be ~zero already).
func bisect(f func(float64) float64, lo, hi, tol float64, maxIter int) (float64, bool) {
	flo, fhi := f(lo), f(hi)
	if flo == 0 {
		return lo, true
	}
	if fhi == 0 {
		return hi, true
	}
	if sameSign(flo, fhi) {
		return 0, false
	}

	for i := 0; i < maxIter; i++ {
		mid := (lo + hi) / 2
		fmid := f(mid)
		if math.Abs(fmid) < tol || (hi-lo)/2 < tol {
			return mid, true
		}
		if sameSign(fmid, flo) {
			lo, flo = mid, fmid
		} else {
			hi, fhi = mid, fmid
		}
	}
	return (lo + hi) / 2, true
}

// brent implements Brent's root-finding method with inverse quadratic
// interpolation, falling back to secant/bisection steps per the classic
// algorithm. Returns ok=false if the interval does not bracket a root.
func brent(f func(float64) float64, a, b, tol float64, maxIter int) (float64, bool) {
	fa, fb := f(a), f(b)
	if sameSign(fa, fb) && fa != 0 && fb != 0 {
		return 0, false
	}
	if math.Abs(fa) < math.Abs(fb) {
		a, b = b, a
		fa, fb = fb, fa
	}
	c, fc := a, fa
	mflag := true
	var d float64

	for i := 0; i < maxIter; i++ {
		if fb == 0 || math.Abs(b-a) < tol {
			return b, true
		}

		var s float64
		if fa != fc && fb != fc {
			// Inverse quadratic interpolation.
			s = a*fb*fc/((fa-fb)*(fa-fc)) +
				b*fa*fc/((fb-fa)*(fb-fc)) +
				c*fa*fb/((fc-fa)*(fc-fb))
		} else {
			// Secant.
			s = b - fb*(b-a)/(fb-fa)
		}

		cond := (s < (3*a+b)/4 && s < b) || (s > (3*a+b)/4 && s > b) ||
			(mflag && math.Abs(s-b) >= math.Abs(b-c)/2) ||
			(!mflag && math.Abs(s-b) >= math.Abs(c-d)/2) ||
			(mflag && math.Abs(b-c) < tol) ||
			(!mflag && math.Abs(c-d) < tol)

		if cond {
			s = (a + b) / 2
			mflag = true
		} else {
			mflag = false
		}

		fs := f(s)
		d = c
		c, fc = b, fb

		if sameSign(fa, fs) {
			a, fa = s, fs
		} else {
			b, fb = s, fs
		}

		if math.Abs(fa) < math.Abs(fb) {
			a, b = b, a
			fa, fb = fb, fa
		}
	}
	return b, true
}

func sameSign(x, y float64) bool {
	return (x > 0 && y > 0) || (x < 0 && y < 0)
}
