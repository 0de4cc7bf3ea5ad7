package domain

// TaskResult summarizes one finished task. It is built once at the end of the
// pipeline and never modified.
//
// OriginalColors and FinalColors are reserved; the pipeline does not count
// colors and always leaves them at zero.
type TaskResult struct {
	SourcePath     string       `json:"source_path"`
	OutputPath     string       `json:"output_path"`
	OriginalFormat Format       `json:"original_format"`
	ResultFormat   Format       `json:"result_format"`
	OriginalMode   ColorMode    `json:"original_mode"`
	ResultMode     ColorMode    `json:"result_mode"`
	OriginalColors int          `json:"original_colors"`
	FinalColors    int          `json:"final_colors"`
	OriginalSize   int64        `json:"original_size"`
	FinalSize      int64        `json:"final_size"`
	Width          int          `json:"width"`
	Height         int          `json:"height"`
	WasOptimized   bool         `json:"was_optimized"`
	WasDownsized   bool         `json:"was_downsized"`
	HadMetadata    bool         `json:"had_metadata"`
	HasMetadata    bool         `json:"has_metadata"`
	OutputConfig   OutputConfig `json:"output_config"`
}

// BytesSaved is never negative.
func (r TaskResult) BytesSaved() int64 {
	if !r.WasOptimized || r.FinalSize >= r.OriginalSize {
		return 0
	}
	return r.OriginalSize - r.FinalSize
}
