package scorer

import "math"

// pfidf implements the coverage-weighted pair lift ("PF-IDF") policy for a
// single method vector.
func (s *Scorer) pfidf(counts []int64, isSeed bool) float64 {
	present := presentIndices(counts, s.SentinelFeature)
	if len(present) < 2 {
		return 0
	}

	n := int64(0)
	if s.Global != nil {
		n = s.Global.TotalEvaluations()
	}

	lift := make(map[int]float64, len(present))

	for _, i := range present {
		var avgFreq float64
		if !isSeed && s.Global != nil && n > 0 {
			avgFreq = float64(s.Global.FeatureCount(i)) / float64(n)
		}
		// isSeed: neutral averages (all zero), per PF-IDF neutrality invariant.
		l := float64(counts[i]) / (avgFreq + eps)
		if l > liftCap {
			l = liftCap
		}

		lift[i] = l
	}

	var sum float64

	var positives int

	for a := 0; a < len(present); a++ {
		for b := a + 1; b < len(present); b++ {
			i, j := present[a], present[b]

			var numerator, denominator float64

			if isSeed {
				// Fixed baseline so arrival order never biases seed scoring.
				numerator = math.Log(2.0)
				denominator = math.Log(2.0)
			} else {
				nij := int64(0)
				if s.Global != nil {
					nij = s.Global.PairCountAt(i, j)
				}

				numerator = math.Log(float64(n+1) / float64(nij+1))
				denominator = math.Log(float64(n + 1))
				if denominator == 0 {
					denominator = math.Log(2.0)
				}
			}

			term := (math.Sqrt(lift[i]*lift[j]) - 1) * numerator / denominator
			if term > 0 {
				sum += term
				positives++
			}
		}
	}

	if positives == 0 {
		return 0
	}

	return sum / float64(positives)
}

// absoluteCount sums the positive counts in a method vector.
func absoluteCount(counts []int64, sentinel int) float64 {
	var sum int64

	for i, c := range counts {
		if i == sentinel {
			continue
		}

		if c > 0 {
			sum += c
		}
	}

	return float64(sum)
}

// pairCoverageNovelty scores a method vector by counting previously-unseen
// pairs/features it exercises, floored at 0.1 when anything is present.
func (s *Scorer) pairCoverageNovelty(counts []int64) float64 {
	present := presentIndices(counts, s.SentinelFeature)
	if len(present) == 0 {
		return 0
	}

	var newPairs, seenPairs, unseenFeatures float64

	for _, i := range present {
		fc := int64(0)
		if s.Global != nil {
			fc = s.Global.FeatureCount(i)
		}

		if fc == 0 {
			unseenFeatures++
		}
	}

	for a := 0; a < len(present); a++ {
		for b := a + 1; b < len(present); b++ {
			i, j := present[a], present[b]

			n := int64(0)
			if s.Global != nil {
				n = s.Global.PairCountAt(i, j)
			}

			if n == 0 {
				newPairs++
			} else {
				seenPairs++
			}
		}
	}

	score := newPairs + 0.5*unseenFeatures + 0.05*seenPairs
	if score < 0.1 {
		score = 0.1
	}

	return score
}

// interactionDiversity returns total count minus the peak single-feature
// count, rewarding spread-out optimization activity over one dominant hot
// feature.
func interactionDiversity(counts []int64, sentinel int) float64 {
	var total, peak int64

	for i, c := range counts {
		if i == sentinel || c <= 0 {
			continue
		}

		total += c
		if c > peak {
			peak = c
		}
	}

	return float64(total - peak)
}

// novelFeatureBonus returns the count of never-before-seen features plus a
// small fraction of total activity.
func (s *Scorer) novelFeatureBonus(counts []int64) float64 {
	present := presentIndices(counts, s.SentinelFeature)

	var unseen, total int64

	for _, i := range present {
		total += counts[i]

		fc := int64(0)
		if s.Global != nil {
			fc = s.Global.FeatureCount(i)
		}

		if fc == 0 {
			unseen++
		}
	}

	return float64(unseen) + 0.1*float64(total)
}

// uniformScore is the ablation baseline: any coverage at all scores 1, no
// coverage scores 0. Skips runtime weighting entirely (see Preview).
func uniformScore(counts []int64, sentinel int) float64 {
	for i, c := range counts {
		if i != sentinel && c > 0 {
			return 1.0
		}
	}

	return 0
}

func presentIndices(counts []int64, sentinel int) []int {
	var out []int

	for i, c := range counts {
		if i == sentinel {
			continue
		}

		if c > 0 {
			out = append(out, i)
		}
	}

	return out
}
