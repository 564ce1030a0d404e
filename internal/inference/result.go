package inference

// File type labels returned by the inference backends
const (
	FileTypeImage = "image"
	FileTypeVideo = "video"
)

// DetectionResult is the per-file response of a single inference
// backend.
type DetectionResult struct {
	Type                string         `json:"type"`
	ValidDetections     int            `json:"valid_detections"`
	ConfidenceThreshold float64        `json:"confidence_threshold"`
	ClassDistribution   map[string]int `json:"class_distribution"`
	FramesAnalyzed      int            `json:"frames_analyzed,omitempty"`
}

// CombinedResult is the merged per-file output of both backends. Each
// backend is treated as a binary detector for its own anomaly class:
// key "0" carries the primary backend's class-0 count, key "1" the
// secondary backend's. Class distribution keys beyond "0" are
// discarded; broader backend outputs would need a configurable class
// mapping first.
type CombinedResult struct {
	Type                string         `json:"type"`
	ValidDetections     int            `json:"valid_detections"`
	ConfidenceThreshold float64        `json:"confidence_threshold"`
	ClassDistribution   map[string]int `json:"class_distribution"`
	FramesAnalyzed      int            `json:"frames_analyzed,omitempty"`
}

// Combine merges the primary and secondary backend results for one
// input file: detections are summed, confidence thresholds averaged,
// class distributions re-keyed per backend, and frames_analyzed copied
// from the primary result for videos.
//
// A nil argument stands for a failed backend call and contributes the
// neutral element (zero detections, zero confidence), so one failing
// backend never sinks the whole batch. Type and frames fall back to
// whichever backend answered. When both arguments are nil the result
// is all zeros with an empty type, which is not distinguishable from a
// genuine zero-detection result; callers that need the distinction must
// track per-call success themselves, as the worker does.
func Combine(primary, secondary *DetectionResult) CombinedResult {
	combined := CombinedResult{
		ClassDistribution: map[string]int{"0": 0, "1": 0},
	}

	if primary != nil {
		combined.Type = primary.Type
		combined.ValidDetections += primary.ValidDetections
		combined.ConfidenceThreshold += primary.ConfidenceThreshold
		combined.ClassDistribution["0"] = primary.ClassDistribution["0"]
	}

	if secondary != nil {
		if combined.Type == "" {
			combined.Type = secondary.Type
		}
		combined.ValidDetections += secondary.ValidDetections
		combined.ConfidenceThreshold += secondary.ConfidenceThreshold
		combined.ClassDistribution["1"] = secondary.ClassDistribution["0"]
	}

	combined.ConfidenceThreshold /= 2

	if combined.Type == FileTypeVideo {
		switch {
		case primary != nil:
			combined.FramesAnalyzed = primary.FramesAnalyzed
		case secondary != nil:
			combined.FramesAnalyzed = secondary.FramesAnalyzed
		}
	}

	return combined
}
