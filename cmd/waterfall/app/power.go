package app

import "math"

const (
	defaultMinPower = -60.0 // dB
	defaultMaxPower = 0.0   // dB

	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20

	minimumRange = 10 // dB
)

// PowerBounds represents the calculated power boundaries
type PowerBounds struct {
	Min  float64 // 5th percentile power level in dB
	Max  float64 // 95th percentile power level in dB
	Mean float64 // Mean power level in dB
}

func defaultPowerBounds() PowerBounds {
	return PowerBounds{
		Min:  defaultMinPower,
		Max:  defaultMaxPower,
		Mean: (defaultMinPower + defaultMaxPower) / 2,
	}
}

// PowerHistogram maintains a histogram of power values with 1dB bins
type PowerHistogram struct {
	bins       map[int]uint64 // Map of bin index to count
	totalCount uint64         // Total number of samples
	sum        float64
	minBin     int // Cache for min bin
	maxBin     int // Cache for max bin
}

// NewPowerHistogram creates a new histogram
func NewPowerHistogram() *PowerHistogram {
	return &PowerHistogram{
		bins:   make(map[int]uint64),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

// Update adds a power reading in dB to the histogram. Non-finite readings,
// such as the dB value of an empty bin, are ignored.
func (h *PowerHistogram) Update(power float64) {
	if math.IsInf(power, 0) || math.IsNaN(power) {
		return
	}

	bin := int(math.Floor(power))

	h.bins[bin]++
	h.totalCount++
	h.sum += power

	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

// Bounds returns power bounds based on the 5th and 95th percentiles
func (h *PowerHistogram) Bounds() PowerBounds {
	if h.totalCount < minimumSampleCount { // Require minimum samples
		return defaultPowerBounds()
	}

	target := h.totalCount * 5 / 100

	var count uint64
	var min5th, max95th int

	// Find 5th percentile
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += h.bins[bin]
		if count >= target {
			min5th = bin
			break
		}
	}

	// Find 95th percentile
	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += h.bins[bin]
		if count >= target {
			max95th = bin + 1
			break
		}
	}

	if max95th-min5th < minimumRange {
		center := (max95th + min5th) / 2
		min5th = center - minimumRange/2
		max95th = center + minimumRange/2
	}

	margin := (max95th - min5th) / 10

	return PowerBounds{
		Min:  float64(min5th - margin),
		Max:  float64(max95th + margin),
		Mean: h.sum / float64(h.totalCount),
	}
}
