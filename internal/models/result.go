package models

// AnalysisResult is the outcome of one pass over both datasets for a shape.
// The zero value is the cleared result.
type AnalysisResult struct {
	TotalPopulation      float64 `json:"total_population"`
	TotalShelterCapacity float64 `json:"total_shelter_capacity"`
	CoveragePercentage   float64 `json:"coverage_percentage"`
	AreasProcessed       int     `json:"areas_processed"`
	AreasIntersected     int     `json:"areas_intersected"`
	AreasWithErrors      int     `json:"areas_with_errors"`
	BunkersInside        int     `json:"bunkers_inside"`
}
