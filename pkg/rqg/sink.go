package rqg

import (
	"bufio"
	"os"

	"github.com/cockroachdb/errors"
)

// outputSink receives every generated query's text, per spec.md §6.2's
// output.sink option — distinct from the reporter's own progress/
// summary sink (pkg/report.Sink), which never sees query text.
type outputSink interface {
	writeQuery(text string) error
	close() error
}

type noopOutputSink struct{}

func (noopOutputSink) writeQuery(string) error { return nil }
func (noopOutputSink) close() error            { return nil }

type stdoutOutputSink struct {
	w *bufio.Writer
}

func newStdoutOutputSink() *stdoutOutputSink {
	return &stdoutOutputSink{w: bufio.NewWriter(os.Stdout)}
}

func (s *stdoutOutputSink) writeQuery(text string) error {
	if _, err := s.w.WriteString(text); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *stdoutOutputSink) close() error { return s.w.Flush() }

// fileOutputSink writes one generated statement per line, matching
// spec.md §6.3's output file format exactly (UTF-8, trailing newline,
// no escaping beyond SQL's own quoting).
type fileOutputSink struct {
	f *os.File
	w *bufio.Writer
}

func newFileOutputSink(path string) (*fileOutputSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open output file")
	}
	return &fileOutputSink{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *fileOutputSink) writeQuery(text string) error {
	if _, err := s.w.WriteString(text); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *fileOutputSink) close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

func newOutputSink(cfg RunConfig) (outputSink, error) {
	switch cfg.OutputSink {
	case OutputStdout:
		return newStdoutOutputSink(), nil
	case OutputFile:
		return newFileOutputSink(cfg.OutputPath)
	default:
		return noopOutputSink{}, nil
	}
}
