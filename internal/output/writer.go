// Package output writes findings reports and streams findings while a scan runs.
package output

import (
	"io"

	"github.com/PentesterFlow/apiprobe/internal/model"
)

// Writer defines the interface for output writers.
type Writer interface {
	// WriteReport writes the final report
	WriteReport(report *Report) error

	// WriteEndpoint writes a discovered endpoint (for streaming)
	WriteEndpoint(endpoint *model.Endpoint) error

	// WriteFinding writes a single vulnerability (for streaming)
	WriteFinding(vuln *model.Vulnerability) error

	// WriteError writes an error (for streaming)
	WriteError(err *ScanError) error

	Flush() error
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format   string `json:"format" yaml:"format"`
	Pretty   bool   `json:"pretty" yaml:"pretty"`
	Stream   bool   `json:"stream" yaml:"stream"`
	FilePath string `json:"file_path" yaml:"file_path"`
}

// NewWriter creates a new output writer. JSON is the only format.
func NewWriter(w io.Writer, config Config) Writer {
	return NewJSONWriter(w, config.Pretty, config.Stream)
}
