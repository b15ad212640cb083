package vision

import (
	"fmt"
	"path/filepath"

	"anpr-pipeline/internal/pipeline"
)

const (
	DebugColorFile  = "debug_cut_color.png"
	DebugBinaryFile = "debug_cut_bw_processed.png"
)

// SaveCrops writes the raw and binarized crop into dir and returns the paths.
func SaveCrops(dir string, crops *pipeline.Crops) ([]string, error) {
	if crops == nil || crops.Raw == nil || crops.Binary == nil {
		return nil, fmt.Errorf("no plate crop to save")
	}

	paths := []string{
		filepath.Join(dir, DebugColorFile),
		filepath.Join(dir, DebugBinaryFile),
	}
	if err := WriteImage(paths[0], crops.Raw); err != nil {
		return nil, err
	}
	if err := WriteImage(paths[1], crops.Binary); err != nil {
		return nil, err
	}
	return paths, nil
}
