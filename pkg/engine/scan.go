package engine

import (
	"encoding/json"
)

// Scan type names as they appear in events and report filenames.
const (
	ScanTypeIntraProject = "intra-project"
	ScanTypeCrossProject = "cross-project"
)

// scanInput is the slice of a scan pipeline's input the engine reads to
// describe the scan in events. Everything else passes through opaquely.
type scanInput struct {
	RepositoryPath  string   `json:"repositoryPath"`
	RepositoryPaths []string `json:"repositoryPaths"`
	GroupName       string   `json:"groupName"`
}

// describeScan derives the scan type and path list from a scan job's input.
// Inputs naming several repositories are cross-project scans; everything
// else, including unparseable input, is an intra-project scan.
func describeScan(input json.RawMessage) (scanType string, paths []string) {
	var in scanInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return ScanTypeIntraProject, nil
		}
	}
	if len(in.RepositoryPaths) > 1 {
		return ScanTypeCrossProject, in.RepositoryPaths
	}
	if len(in.RepositoryPaths) == 1 {
		return ScanTypeIntraProject, in.RepositoryPaths
	}
	if in.RepositoryPath != "" {
		return ScanTypeIntraProject, []string{in.RepositoryPath}
	}
	return ScanTypeIntraProject, nil
}

// Result keys recognised as scan metrics when the executor does not nest
// them under "metrics". "duplicates" is the legacy spelling of
// "duplicate_groups".
var scanMetricKeys = map[string]string{
	"duplicates":              "duplicate_groups",
	"duplicate_groups":        "duplicate_groups",
	"total_duplicate_groups":  "total_duplicate_groups",
	"files_analyzed":          "files_analyzed",
	"total_files_analyzed":    "total_files_analyzed",
	"total_duplicated_lines":  "total_duplicated_lines",
	"duplication_percentage":  "duplication_percentage",
	"quick_wins":              "quick_wins",
	"potential_loc_reduction": "potential_loc_reduction",
}

// ScanMetrics pulls a metrics object out of a scan result. A top-level
// "metrics" object wins; otherwise recognised top-level keys are
// collected. Unusable results yield nil, never an error: metrics are
// decoration on scan:completed, not part of the result contract.
func ScanMetrics(result json.RawMessage) map[string]any {
	if len(result) == 0 {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(result, &doc); err != nil {
		return nil
	}
	if m, ok := doc["metrics"].(map[string]any); ok && len(m) > 0 {
		return m
	}
	metrics := make(map[string]any)
	for key, name := range scanMetricKeys {
		if v, ok := doc[key]; ok {
			metrics[name] = v
		}
	}
	if len(metrics) == 0 {
		return nil
	}
	return metrics
}
