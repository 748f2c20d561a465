package convert

import (
	"path/filepath"
	"strings"

	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/formats"
)

// Job is the outcome of one export request: named output bytes plus the
// content type for delivery. A job never outlives its export call.
type Job struct {
	Source      formats.Format
	Target      formats.Format
	Filename    string
	ContentType string
	Data        []byte
}

// outputName derives <basename>.<ext> from the uploaded file name.
func outputName(sourceName string, target formats.Format) string {
	base := strings.TrimSuffix(sourceName, filepath.Ext(sourceName))
	if base == "" {
		base = "model"
	}
	return base + target.Ext()
}
