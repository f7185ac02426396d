// Package probability converts distance to strike into a finish probability
// using a fat-tailed Student-t distribution with three degrees of freedom.
package probability

import "math"

const (
	MinProb = 0.001
	MaxProb = 0.999
)

var sqrt3 = math.Sqrt(3)

// StudentT3CDF is the closed-form CDF of a Student-t with 3 degrees of
// freedom. It is exactly 0.5 at t = 0.
func StudentT3CDF(t float64) float64 {
	return 0.5 + (1/math.Pi)*(math.Atan(t/sqrt3)+(t*sqrt3)/(3+t*t))
}

// FinishProb returns the probability that spot finishes above the strike
// given the current distance (spot minus strike), per-second volatility and
// seconds remaining. The scale is sigma = vol * sqrt(timeLeft). The result is clamped to
// [MinProb, MaxProb]. With no volatility or no time left the answer is
// binary, and a distance of exactly zero resolves to MinProb.
func FinishProb(distance, vol, timeLeft float64) float64 {
	if vol <= 0 || timeLeft <= 0 {
		if distance > 0 {
			return MaxProb
		}
		return MinProb
	}
	sigma := vol * math.Sqrt(timeLeft)
	return Clamp(StudentT3CDF(distance/sigma), MinProb, MaxProb)
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Logit is the log-odds of p after clamping p to [MinProb, MaxProb].
func Logit(p float64) float64 {
	p = Clamp(p, MinProb, MaxProb)
	return math.Log(p / (1 - p))
}

// Logistic is the inverse of Logit with the exponent clamped to
// [-limit, limit].
func Logistic(x, limit float64) float64 {
	return 1 / (1 + math.Exp(-Clamp(x, -limit, limit)))
}
