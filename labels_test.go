package vidtrack

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lokal-ai/vidtrack/session"
	"github.com/lokal-ai/vidtrack/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLabels(t *testing.T) {

	labels, err := ReadLabels(strings.NewReader("person\n bicycle \n\ncar\n\n\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"person", "bicycle", "", "car"}, labels)
}

func TestLoadLabels(t *testing.T) {

	path := filepath.Join(t.TempDir(), "coco_80_labels_list.txt")
	require.NoError(t, os.WriteFile(path, []byte("person\nbicycle\ncar\n"), 0o600))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "bicycle", "car"}, labels)

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLabelDetector(t *testing.T) {

	inner := session.DetectorFunc[int](func(ctx context.Context, frame session.Frame[int]) ([]tracker.Detection, error) {
		box := tracker.NewBox(0, 0, 10, 10)
		return []tracker.Detection{
			tracker.NewDetection(box, 0.9, 2, ""),
			tracker.NewDetection(box, 0.8, 0, "shopper"),
			tracker.NewDetection(box, 0.7, 9, ""),
		}, nil
	})

	det := LabelDetector[int](inner, []string{"person", "bicycle", "car"})

	dets, err := det.Detect(context.Background(), session.Frame[int]{})
	require.NoError(t, err)

	assert.Equal(t, "car", dets[0].ClassName)
	assert.Equal(t, "shopper", dets[1].ClassName)
	assert.Empty(t, dets[2].ClassName)
}

func TestLabelDetectorKeepsInnerSlice(t *testing.T) {

	cached := []tracker.Detection{
		tracker.NewDetection(tracker.NewBox(0, 0, 10, 10), 0.9, 1, ""),
	}

	inner := session.DetectorFunc[int](func(ctx context.Context, frame session.Frame[int]) ([]tracker.Detection, error) {
		return cached, nil
	})

	dets, err := LabelDetector[int](inner, []string{"person", "bicycle"}).Detect(context.Background(), session.Frame[int]{})
	require.NoError(t, err)

	assert.Equal(t, "bicycle", dets[0].ClassName)
	assert.Empty(t, cached[0].ClassName)
}
