package chain

import "math"

const daysPerYear = 365.0

// normalPDF computes the probability density function of the standard normal distribution
func normalPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// BlackScholesGamma returns the Black-Scholes gamma of an option.
// S = underlying price, K = strike, days = calendar days to expiration,
// r = risk-free rate and sigma = volatility, both as fractions.
// Returns 0 when any of S, K, days or sigma is not positive.
func BlackScholesGamma(S, K, days, r, sigma float64) float64 {
	if S <= 0 || K <= 0 || days <= 0 || sigma <= 0 {
		return 0
	}

	T := days / daysPerYear
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)

	return normalPDF(d1) / (S * sigma * sqrtT)
}
