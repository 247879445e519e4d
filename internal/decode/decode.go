// Package decode turns raw import files into loosely typed entries.
//
// Decoders isolate every format-specific concern. They never drop data
// silently: a malformed element or row is reported as a *ParseError in the
// entry stream and decoding continues with the next one.
package decode

import (
	"fmt"
	"io"
	"iter"

	"fitrec/internal/model"
)

// RawEntry is one decoded, not yet canonicalized, entry. It is implemented
// by one small variant type per decoder.
type RawEntry interface {
	// Ref identifies the entry within its source file for error reports.
	Ref() string
	rawEntry()
}

// Decoder opens a raw import file and streams its entries.
type Decoder interface {
	// Decode opens the container. It returns a *ContainerError when the
	// file cannot be read at the container level at all.
	Decode(r io.ReaderAt, size int64) (*Stream, error)
}

// Stream is a finite, single-use sequence of entries. Per-entry failures
// are yielded as (nil, *ParseError) pairs alongside valid entries.
type Stream struct {
	seq     iter.Seq2[RawEntry, error]
	skipped int
	used    bool
}

// All returns the entry sequence. It may be ranged over once.
func (s *Stream) All() iter.Seq2[RawEntry, error] {
	return func(yield func(RawEntry, error) bool) {
		if s.used {
			yield(nil, fmt.Errorf("decode stream already consumed"))
			return
		}
		s.used = true
		s.seq(yield)
	}
}

// Skipped reports how many unrecognized elements were passed over. It is
// final once the sequence has been fully consumed.
func (s *Stream) Skipped() int {
	return s.skipped
}

// ForSource returns the decoder that handles files from source.
func ForSource(source model.Source) (Decoder, error) {
	switch source {
	case model.SourceImportApple:
		return &HealthExportDecoder{}, nil
	case model.SourceImportHevy:
		return &WorkoutLogDecoder{}, nil
	default:
		return nil, fmt.Errorf("no file decoder for source %q", source)
	}
}

// ContainerError reports a file that is unreadable as a whole.
type ContainerError struct {
	Err error
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("unreadable import file: %v", e.Err)
}

func (e *ContainerError) Unwrap() error { return e.Err }

// ParseError reports one malformed element or row.
type ParseError struct {
	Ref string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Ref, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
