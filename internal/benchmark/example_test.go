package benchmark_test

import (
	"fmt"

	"medparse/internal/benchmark"
	"medparse/pkg/models"
)

func ExampleClassifyBenchmarkStatus() {
	rng := models.ReferenceRange{Min: 70, Max: 100}
	for _, v := range []float64{45, 75, 85, 126} {
		fmt.Println(v, benchmark.ClassifyBenchmarkStatus(v, rng))
	}
	// Output:
	// 45 critical
	// 75 borderline
	// 85 normal
	// 126 abnormal
}

func ExampleEngine_Benchmark() {
	store, err := benchmark.NewDefaultStore()
	if err != nil {
		fmt.Println(err)
		return
	}

	engine := benchmark.NewEngine(store, "US")
	records, _ := engine.Benchmark(&models.ExtractedMedicalData{
		LabValues: []models.LabValue{{Parameter: "LDL Cholesterol", Value: 112, Unit: "mg/dL"}},
	}, nil)

	for _, r := range records {
		fmt.Printf("%s: percentile %.1f, %s %s\n", r.Parameter, r.Percentile, r.RegionalStandard.Region, r.RegionalStandard.Classification)
	}
	// Output:
	// LDL Cholesterol: percentile 50.0, US abnormal
}
