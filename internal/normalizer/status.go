package normalizer

import "medparse/pkg/models"

// ClassifyStatus is the extraction-time status of v against r.
//
//	critical    v < 0.5·min or v > 1.5·max
//	low         v < min
//	high        v > max
//	borderline  v ≤ 1.1·min or v ≥ 0.9·max
//	normal      otherwise
func ClassifyStatus(v float64, r models.ReferenceRange) models.LabStatus {
	switch {
	case v < 0.5*r.Min || v > 1.5*r.Max:
		return models.StatusCritical
	case v < r.Min:
		return models.StatusLow
	case v > r.Max:
		return models.StatusHigh
	case v <= 1.1*r.Min || v >= 0.9*r.Max:
		return models.StatusBorderline
	default:
		return models.StatusNormal
	}
}
