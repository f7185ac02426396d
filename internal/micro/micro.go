// Package micro computes short-horizon microstructure estimates from the
// tick buffer.
package micro

import (
	"math"
	"sort"

	"github.com/alanyoungcy/updownbot/internal/tick"
)

// Volatility buckets ticks by whole second, keeping the last price seen in
// each bucket, and returns the sample standard deviation of the log returns
// between consecutive buckets. It returns 0 when fewer than two returns exist.
func Volatility(buf *tick.Buffer) float64 {
	if buf.Len() < 2 {
		return 0
	}
	buckets := make(map[int64]float64, buf.Len())
	for i := 0; i < buf.Len(); i++ {
		t := buf.At(i)
		buckets[int64(math.Floor(t.Timestamp))] = t.Price
	}
	if len(buckets) < 3 {
		return 0
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	returns := make([]float64, 0, len(keys)-1)
	for i := 1; i < len(keys); i++ {
		prev, cur := buckets[keys[i-1]], buckets[keys[i]]
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	return sampleStdDev(returns)
}

// Velocity is the absolute dollar move between the newest tick and the most
// recent tick at least lookback seconds older. When no tick is old enough the
// oldest buffered tick is the reference.
func Velocity(buf *tick.Buffer, lookback float64) float64 {
	n := buf.Len()
	if n < 2 {
		return 0
	}
	latest := buf.At(n - 1)
	cutoff := latest.Timestamp - lookback

	ref := buf.At(0)
	for i := n - 2; i >= 0; i-- {
		if t := buf.At(i); t.Timestamp <= cutoff {
			ref = t
			break
		}
	}
	return math.Abs(latest.Price - ref.Price)
}

// SignedMove is the last tick-over-tick price change.
func SignedMove(buf *tick.Buffer) float64 {
	n := buf.Len()
	if n < 2 {
		return 0
	}
	return buf.At(n-1).Price - buf.At(n-2).Price
}

func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
