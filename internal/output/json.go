package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/PentesterFlow/apiprobe/internal/model"
)

// JSONWriter writes output in JSON format. In stream mode every event is one
// JSON line.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteReport writes the complete report.
func (j *JSONWriter) WriteReport(report *Report) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return err
	}

	return j.writeLine(data)
}

// WriteEndpoint writes a discovered endpoint in streaming mode.
func (j *JSONWriter) WriteEndpoint(endpoint *model.Endpoint) error {
	return j.writeStreamEvent(StreamEvent{Type: "endpoint", Data: endpoint})
}

// WriteFinding writes a vulnerability in streaming mode.
func (j *JSONWriter) WriteFinding(vuln *model.Vulnerability) error {
	return j.writeStreamEvent(StreamEvent{Type: "finding", Data: vuln})
}

// WriteError writes an error in streaming mode.
func (j *JSONWriter) WriteError(err *ScanError) error {
	return j.writeStreamEvent(StreamEvent{Type: "error", Data: err})
}

func (j *JSONWriter) writeStreamEvent(event StreamEvent) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	// Stream lines are never indented so consumers can split on newlines.
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return j.writeLine(data)
}

func (j *JSONWriter) writeLine(data []byte) error {
	if _, err := j.writer.Write(data); err != nil {
		return err
	}
	_, err := j.writer.Write([]byte("\n"))
	return err
}

// Flush flushes the writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close closes the writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// StreamEvent represents a streaming output event.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ProgressWriter wraps a writer and reports progress.
type ProgressWriter struct {
	Writer
	onProgress func(stats ProgressStats)
}

// ProgressStats is a progress increment.
type ProgressStats struct {
	Endpoints int
	Findings  int
	Errors    int
}

// NewProgressWriter creates a writer that reports progress.
func NewProgressWriter(w Writer, onProgress func(ProgressStats)) *ProgressWriter {
	return &ProgressWriter{
		Writer:     w,
		onProgress: onProgress,
	}
}

// WriteEndpoint writes an endpoint and updates progress.
func (p *ProgressWriter) WriteEndpoint(endpoint *model.Endpoint) error {
	if p.onProgress != nil {
		p.onProgress(ProgressStats{Endpoints: 1})
	}
	return p.Writer.WriteEndpoint(endpoint)
}

// WriteFinding writes a finding and updates progress.
func (p *ProgressWriter) WriteFinding(vuln *model.Vulnerability) error {
	if p.onProgress != nil {
		p.onProgress(ProgressStats{Findings: 1})
	}
	return p.Writer.WriteFinding(vuln)
}

// WriteError writes an error and updates progress.
func (p *ProgressWriter) WriteError(err *ScanError) error {
	if p.onProgress != nil {
		p.onProgress(ProgressStats{Errors: 1})
	}
	return p.Writer.WriteError(err)
}
