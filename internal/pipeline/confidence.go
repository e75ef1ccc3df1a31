package pipeline

import "medparse/pkg/models"

// Bounds of the computed confidence when something was extracted.
const (
	minConfidence = 0.60
	maxConfidence = 0.95

	// fallbackConfidence caps results built on placeholder text.
	fallbackConfidence = 0.30
)

// Confidence combines the strategy baseline, the acquisition quality and
// the extracted data into the overall result confidence.
//
// With data: baseline·(0.7+0.3·quality) + min(0.05, 0.01·items)
// − 0.10·autoDetectedShare, clamped to [0.60, 0.95].
// Without data: baseline·quality·0.6, clamped to [0, 1].
func Confidence(baseline, quality float64, data *models.ExtractedMedicalData) float64 {
	quality = clamp(quality, 0, 1)

	items := data.ItemCount()
	if items == 0 {
		return clamp(baseline*quality*0.6, 0, 1)
	}

	c := baseline*(0.7+0.3*quality) + min(0.05, 0.01*float64(items))
	if n := len(data.LabValues); n > 0 {
		auto := 0
		for _, v := range data.LabValues {
			if v.AutoDetected {
				auto++
			}
		}
		c -= 0.10 * float64(auto) / float64(n)
	}
	return clamp(c, minConfidence, maxConfidence)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
