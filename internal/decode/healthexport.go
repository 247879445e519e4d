package decode

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Health-export element types the canonicalizer understands.
const (
	TypeBodyMass          = "HKQuantityTypeIdentifierBodyMass"
	TypeBodyFatPercentage = "HKQuantityTypeIdentifierBodyFatPercentage"
	TypeSleepAnalysis     = "HKCategoryTypeIdentifierSleepAnalysis"
)

var recognizedRecordTypes = map[string]bool{
	TypeBodyMass:          true,
	TypeBodyFatPercentage: true,
	TypeSleepAnalysis:     true,
}

// WorkoutStatistic is a nested per-workout aggregate (energy, distance).
type WorkoutStatistic struct {
	Type string
	Sum  string
	Unit string
}

// HealthElement is one Record or Workout element of a health-export
// document, with its attributes kept as raw strings.
type HealthElement struct {
	Document string
	Line     int
	Element  string // "Record" or "Workout"
	Type     string // record type, or workout activity type
	Attrs    map[string]string
	Stats    []WorkoutStatistic
}

func (e *HealthElement) Ref() string {
	return fmt.Sprintf("%s:%d", e.Document, e.Line)
}

func (*HealthElement) rawEntry() {}

// HealthExportDecoder reads a zip archive holding one or more health-export
// XML documents. Entries are opened and tokenized one at a time so the
// archive is never fully decompressed in memory.
type HealthExportDecoder struct{}

var _ Decoder = (*HealthExportDecoder)(nil)

func (d *HealthExportDecoder) Decode(r io.ReaderAt, size int64) (*Stream, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &ContainerError{Err: fmt.Errorf("opening archive: %w", err)}
	}

	var docs []*zip.File
	for _, f := range zr.File {
		if isHealthDocument(f.Name) {
			docs = append(docs, f)
		}
	}
	if len(docs) == 0 {
		return nil, &ContainerError{Err: errors.New("archive contains no health export document")}
	}

	s := &Stream{}
	s.seq = func(yield func(RawEntry, error) bool) {
		for _, f := range docs {
			if !d.decodeDocument(f, s, yield) {
				return
			}
		}
	}
	return s, nil
}

// isHealthDocument selects XML documents, excluding clinical (CDA) exports.
func isHealthDocument(name string) bool {
	if strings.HasSuffix(name, "/") {
		return false
	}
	base := strings.ToLower(path.Base(name))
	if !strings.HasSuffix(base, ".xml") {
		return false
	}
	return !strings.Contains(base, "_cda")
}

// decodeDocument streams one document. It returns false when the consumer
// stopped iterating.
func (d *HealthExportDecoder) decodeDocument(f *zip.File, s *Stream, yield func(RawEntry, error) bool) bool {
	rc, err := f.Open()
	if err != nil {
		return yield(nil, &ParseError{Ref: f.Name, Err: fmt.Errorf("opening document: %w", err)})
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return true
		}
		if err != nil {
			// The rest of this document is unreadable; move to the next one.
			line, _ := dec.InputPos()
			return yield(nil, &ParseError{Ref: fmt.Sprintf("%s:%d", f.Name, line), Err: fmt.Errorf("reading document: %w", err)})
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "Record":
			line, _ := dec.InputPos()
			el := newHealthElement(f.Name, line, start)
			el.Type = el.Attrs["type"]
			if err := dec.Skip(); err != nil {
				return yield(nil, &ParseError{Ref: el.Ref(), Err: fmt.Errorf("reading record: %w", err)})
			}
			if el.Type == "" || el.Attrs["startDate"] == "" {
				if !yield(nil, &ParseError{Ref: el.Ref(), Err: errors.New("record missing type or startDate")}) {
					return false
				}
				continue
			}
			if !recognizedRecordTypes[el.Type] {
				s.skipped++
				continue
			}
			if !yield(el, nil) {
				return false
			}

		case "Workout":
			line, _ := dec.InputPos()
			el := newHealthElement(f.Name, line, start)
			el.Type = el.Attrs["workoutActivityType"]
			if err := readWorkoutChildren(dec, el); err != nil {
				return yield(nil, &ParseError{Ref: el.Ref(), Err: fmt.Errorf("reading workout: %w", err)})
			}
			if el.Attrs["startDate"] == "" {
				if !yield(nil, &ParseError{Ref: el.Ref(), Err: errors.New("workout missing startDate")}) {
					return false
				}
				continue
			}
			if !yield(el, nil) {
				return false
			}

		case "ActivitySummary", "ClinicalRecord", "Audiogram", "VisionPrescription":
			s.skipped++
			if err := dec.Skip(); err != nil {
				line, _ := dec.InputPos()
				return yield(nil, &ParseError{Ref: fmt.Sprintf("%s:%d", f.Name, line), Err: err})
			}
		}
	}
}

func newHealthElement(doc string, line int, start xml.StartElement) *HealthElement {
	attrs := make(map[string]string, len(start.Attr))
	for _, a := range start.Attr {
		attrs[a.Name.Local] = a.Value
	}
	return &HealthElement{
		Document: doc,
		Line:     line,
		Element:  start.Name.Local,
		Attrs:    attrs,
	}
}

// readWorkoutChildren consumes tokens up to the end of the current Workout
// element, collecting WorkoutStatistics.
func readWorkoutChildren(dec *xml.Decoder, el *HealthElement) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if t.Name.Local == "WorkoutStatistics" && depth == 2 {
				var st WorkoutStatistic
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "type":
						st.Type = a.Value
					case "sum":
						st.Sum = a.Value
					case "unit":
						st.Unit = a.Value
					}
				}
				el.Stats = append(el.Stats, st)
			}
		case xml.EndElement:
			depth--
		}
	}
	return nil
}
