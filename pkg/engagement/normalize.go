package engagement

// Normalize scales value into [0,1] relative to the [min, max] range of a batch.
// A constant signal (max == min) or an empty range (max == 0) carries no
// information and normalizes to 0.
func Normalize(value, min, max float64) float64 {
	if max <= min || max == 0 {
		return 0
	}
	return clamp((value - min) / (max - min))
}

// normalizeAll min-max scales values against their own range. ok is false when
// every value is equal, i.e. the values cannot differentiate the batch.
func normalizeAll(values []float64) (scores []float64, ok bool) {
	if len(values) == 0 {
		return nil, false
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return nil, false
	}

	scores = make([]float64, len(values))
	for i, v := range values {
		scores[i] = clamp((v - lo) / (hi - lo))
	}
	return scores, true
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
