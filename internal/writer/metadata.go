package writer

import (
	"encoding/json"
	"fmt"
	"os"

	"papergen/internal/models"
)

// SaveMetadata writes the paper's metadata JSON (questions + answer key) to
// path. Written once, after the run finishes.
func SaveMetadata(path string, paper *models.Paper) error {
	data, err := json.MarshalIndent(paper, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling paper metadata: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing paper metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads a previously saved metadata file for the document-only
// mode.
func LoadMetadata(path string) (*models.Paper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading paper metadata: %w", err)
	}
	var paper models.Paper
	if err := json.Unmarshal(data, &paper); err != nil {
		return nil, fmt.Errorf("parsing paper metadata: %w", err)
	}
	if len(paper.Questions) == 0 {
		return nil, fmt.Errorf("no questions found in %s", path)
	}
	return &paper, nil
}
