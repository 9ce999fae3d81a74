package vidtrack

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lokal-ai/vidtrack/session"
	"github.com/lokal-ai/vidtrack/tracker"
)

// LoadLabels reads the class names of a detection model from the given text
// file, one label per line, where the line number is the class ID
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	return ReadLabels(f)
}

// ReadLabels reads labels one per line.  Blank lines in the middle keep
// their position so class IDs stay aligned, trailing blank lines are dropped
func ReadLabels(r io.Reader) ([]string, error) {

	scanner := bufio.NewScanner(r)

	var labels []string

	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels: %w", err)
	}

	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}

	return labels, nil
}

// LabelDetector wraps a Detector that only reports class IDs and fills in
// the class names from labels on a copy of its output
func LabelDetector[T any](det session.Detector[T], labels []string) session.Detector[T] {
	return session.DetectorFunc[T](func(ctx context.Context, frame session.Frame[T]) ([]tracker.Detection, error) {

		dets, err := det.Detect(ctx, frame)

		if err != nil {
			return nil, err
		}

		// the detector may hand out a slice it keeps, label a copy
		out := append([]tracker.Detection(nil), dets...)
		tracker.LabelDetections(out, labels)

		return out, nil
	})
}
