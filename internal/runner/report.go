package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kasugano/envmatrix/internal/model"
)

// WriteReport writes the machine-readable run report as indented JSON,
// creating parent directories as needed.
func WriteReport(path string, report *model.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to encode run report", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to create report directory %s", dir), err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to write run report %s", path), err)
	}
	return nil
}
