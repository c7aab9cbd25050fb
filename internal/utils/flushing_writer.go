package utils

import (
	"io"
	"sync"
)

type flushableWriter interface {
	Flush() error
}

// FlushingWriter pushes buffered output through after every write so export
// lines and progress messages appear in the build log as they happen.
type FlushingWriter struct {
	underlyingWriter io.Writer
	writeMutex       sync.Mutex
}

// NewFlushingWriter wraps the provided writer. Writers without a Flush method
// pass through unchanged apart from serialization.
func NewFlushingWriter(underlyingWriter io.Writer) io.Writer {
	if underlyingWriter == nil {
		return nil
	}
	if _, alreadyWrapped := underlyingWriter.(*FlushingWriter); alreadyWrapped {
		return underlyingWriter
	}
	return &FlushingWriter{underlyingWriter: underlyingWriter}
}

// Write forwards the data and flushes the underlying writer when it supports
// flushing.
func (writer *FlushingWriter) Write(data []byte) (int, error) {
	if writer == nil || writer.underlyingWriter == nil {
		return 0, nil
	}

	writer.writeMutex.Lock()
	defer writer.writeMutex.Unlock()

	writtenCount, writeError := writer.underlyingWriter.Write(data)
	if writeError != nil {
		return writtenCount, writeError
	}

	if flushable, supportsFlush := writer.underlyingWriter.(flushableWriter); supportsFlush {
		if flushError := flushable.Flush(); flushError != nil {
			return writtenCount, flushError
		}
	}

	return writtenCount, nil
}
