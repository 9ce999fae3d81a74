package tracker

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrack(box Box, conf float64) *Track {
	return newTrack(1, NewDetection(box, conf, 3, "bottle"), 3, 0.6)
}

func TestNewTrack(t *testing.T) {
	tr := testTrack(NewBox(0, 0, 10, 10), 0.8)

	assert.Equal(t, uint64(1), tr.GetTrackID())
	assert.Equal(t, 1, tr.GetHits())
	assert.Equal(t, 0, tr.GetAge())
	assert.Equal(t, 0, tr.GetTimeSinceUpdate())
	assert.Equal(t, Tentative, tr.GetState())
	assert.Equal(t, 1.0, tr.GetStability())
	assert.Equal(t, 1.0, tr.GetConsistency())
	assert.Equal(t, 0.8, tr.GetQuality())
	assert.Equal(t, 3, tr.GetClassID())
	assert.Equal(t, "bottle", tr.GetClassName())
	assert.Equal(t, []Box{NewBox(0, 0, 10, 10)}, tr.GetHistory())
	assert.Equal(t, []float64{0.8}, tr.GetConfidenceHistory())
}

func TestTrackStabilityAndConsistency(t *testing.T) {
	tr := testTrack(NewBox(0, 0, 10, 10), 0.9)

	tr.Update(NewBox(30, 0, 40, 10), 0.5)

	// not enough history to rescore yet
	assert.Equal(t, 1.0, tr.GetStability())
	assert.Equal(t, 1.0, tr.GetConsistency())
	assert.InDelta(t, (0.5+1+1)/3.0, tr.GetQuality(), 1e-12)

	tr.Update(NewBox(60, 0, 70, 10), 0.7)

	// centres moved 30px each frame
	assert.InDelta(t, 0.7, tr.GetStability(), 1e-12)
	// population standard deviation of 0.9, 0.5, 0.7
	assert.InDelta(t, 1-math.Sqrt(0.08/3), tr.GetConsistency(), 1e-12)
	assert.InDelta(t, (0.7+tr.GetStability()+tr.GetConsistency())/3, tr.GetQuality(), 1e-12)
	assert.Equal(t, 3, tr.GetHits())
	assert.Equal(t, 2, tr.GetAge())
}

func TestTrackConsistencyUsesLastFive(t *testing.T) {
	tr := testTrack(NewBox(0, 0, 10, 10), 0.1)

	for i := 0; i < 5; i++ {
		tr.Update(NewBox(0, 0, 10, 10), 0.9)
	}

	// the 0.1 has dropped out of the five most recent confidences
	assert.InDelta(t, 1.0, tr.GetConsistency(), 1e-9)
}

func TestTrackHistoryBounded(t *testing.T) {
	tr := testTrack(NewBox(0, 0, 10, 10), 0.9)

	for i := 1; i <= 20; i++ {
		tr.Update(NewBox(float64(i), 0, float64(i)+10, 10), 0.9)
	}

	history := tr.GetHistory()
	confs := tr.GetConfidenceHistory()

	require.Len(t, history, historySize)
	require.Len(t, confs, historySize)
	assert.Equal(t, NewBox(20, 0, 30, 10), history[len(history)-1])
	assert.Equal(t, NewBox(6, 0, 16, 10), history[0])
}

func TestTrackPredict(t *testing.T) {
	tr := testTrack(NewBox(0, 0, 10, 10), 0.9)

	// a single observation has no motion
	assert.Equal(t, NewBox(0, 0, 10, 10), tr.Predict())
	assert.Equal(t, Point{}, tr.GetVelocity())

	tr.Update(NewBox(10, 0, 20, 10), 0.9)

	pred := tr.Predict()
	assert.InDelta(t, 3.0, tr.GetVelocity().X, 1e-12)
	assert.InDelta(t, 0.0, tr.GetVelocity().Y, 1e-12)
	for i, want := range NewBox(13, 0, 23, 10) {
		assert.InDelta(t, want, pred[i], 1e-9)
	}

	// prediction does not replace the observed box
	assert.Equal(t, NewBox(10, 0, 20, 10), tr.GetBox())
	assert.Equal(t, NewBox(10, 0, 20, 10), tr.matchBox(false))
	assert.Equal(t, pred, tr.matchBox(true))

	// repeated prediction keeps smoothing the same displacement
	tr.Predict()
	assert.InDelta(t, 0.7*3+0.3*10, tr.GetVelocity().X, 1e-12)
}

func TestTrackMarkMissed(t *testing.T) {
	tr := testTrack(NewBox(0, 0, 10, 10), 0.9)
	tr.Update(NewBox(0, 0, 10, 10), 0.9)
	tr.Update(NewBox(0, 0, 10, 10), 0.9)

	require.Equal(t, Confirmed, tr.GetState())

	q := tr.GetQuality()
	s := tr.GetStability()
	c := tr.GetConsistency()

	tr.MarkMissed()

	assert.Equal(t, 1, tr.GetTimeSinceUpdate())
	assert.Equal(t, 3, tr.GetAge())
	assert.InDelta(t, q*0.95, tr.GetQuality(), 1e-12)
	assert.Equal(t, s, tr.GetStability())
	assert.Equal(t, c, tr.GetConsistency())
	// state is only re-evaluated on update
	assert.Equal(t, Confirmed, tr.GetState())
}

func TestTrackCanRevertToTentative(t *testing.T) {
	tr := testTrack(NewBox(0, 0, 10, 10), 0.9)
	tr.Update(NewBox(0, 0, 10, 10), 0.9)
	tr.Update(NewBox(0, 0, 10, 10), 0.9)
	require.True(t, tr.IsConfirmed())

	// a large jump with a weak detection drags quality under the threshold
	tr.Update(NewBox(300, 0, 310, 10), 0.2)

	assert.Equal(t, 0.0, tr.GetStability())
	assert.Less(t, tr.GetQuality(), 0.6)
	assert.Equal(t, Tentative, tr.GetState())
}

func TestSnapshotJSON(t *testing.T) {
	tr := testTrack(NewBox(1, 2, 3, 4), 0.5)

	data, err := json.Marshal(tr.Snapshot())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "tentative", raw["state"])
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0}, raw["bbox"])
	assert.Equal(t, 1.0, raw["track_id"])
	assert.Equal(t, "bottle", raw["class_name"])

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, tr.Snapshot(), snap)
}
