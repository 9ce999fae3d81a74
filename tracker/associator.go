package tracker

import (
	"fmt"
	"log"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Matcher selects the algorithm used to pair tracks with detections
type Matcher int

const (
	// MatchOptimal solves the assignment problem exactly with LAPJV and falls
	// back to greedy matching if the solver fails
	MatchOptimal Matcher = 0
	// MatchGreedy pairs detections in descending confidence order with their
	// best overlapping track
	MatchGreedy Matcher = 1
)

// String returns the configuration name of the matcher
func (m Matcher) String() string {
	switch m {
	case MatchOptimal:
		return "optimal"
	case MatchGreedy:
		return "greedy"
	}

	return fmt.Sprintf("Matcher(%d)", int(m))
}

// MarshalText encodes the matcher by name
func (m Matcher) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a matcher from its name
func (m *Matcher) UnmarshalText(text []byte) error {
	switch string(text) {
	case "optimal", "lapjv", "hungarian":
		*m = MatchOptimal
	case "greedy":
		*m = MatchGreedy
	default:
		return fmt.Errorf("unknown matcher %q", text)
	}

	return nil
}

// Match pairs a track index with a detection index
type Match struct {
	Track     int
	Detection int
}

// Assignment is the result of associating tracks with detections.  Every
// track and detection index appears exactly once across the three lists
type Assignment struct {
	Matches             []Match
	UnmatchedTracks     []int
	UnmatchedDetections []int
}

// Associator pairs tracks with detections using IoU distance
type Associator struct {
	// iouThreshold is the overlap a pair must exceed to be accepted
	iouThreshold float64
	matcher      Matcher
	// logger reports solver fallbacks, nil to stay quiet
	logger *log.Logger
	// fallbacks counts the number of times the greedy fallback was used
	fallbacks int
}

// NewAssociator returns an Associator accepting pairs with an IoU strictly
// above iouThreshold
func NewAssociator(iouThreshold float64, matcher Matcher) *Associator {
	return &Associator{
		iouThreshold: iouThreshold,
		matcher:      matcher,
	}
}

// SetLogger sets the logger used to report solver fallbacks
func (a *Associator) SetLogger(l *log.Logger) {
	a.logger = l
}

// Fallbacks returns how many times the optimal solver failed and greedy
// matching was used instead
func (a *Associator) Fallbacks() int {
	return a.fallbacks
}

// CostMatrix calculates the IoU distance (1 - IoU) between every track box
// (rows) and detection box (columns).  Returns nil if either side is empty
func CostMatrix(tracks []Box, dets []Detection) *mat.Dense {

	if len(tracks) == 0 || len(dets) == 0 {
		return nil
	}

	cost := mat.NewDense(len(tracks), len(dets), nil)

	for i, tb := range tracks {
		for j, det := range dets {
			cost.Set(i, j, 1-tb.IoU(det.Box))
		}
	}

	return cost
}

// Associate matches track boxes to detections
func (a *Associator) Associate(tracks []Box, dets []Detection) Assignment {

	if len(tracks) == 0 || len(dets) == 0 {
		return Assignment{
			UnmatchedTracks:     seq(len(tracks)),
			UnmatchedDetections: seq(len(dets)),
		}
	}

	cost := CostMatrix(tracks, dets)

	if a.matcher == MatchGreedy {
		return a.greedy(cost, dets)
	}

	assign, err := a.optimal(cost)

	if err != nil {
		a.fallbacks++

		if a.logger != nil {
			a.logger.Printf("optimal assignment failed, using greedy matching: %v", err)
		}

		return a.greedy(cost, dets)
	}

	return assign
}

// optimal solves the rectangular assignment problem over the whole cost
// matrix then drops pairs that fail the IoU gate
func (a *Associator) optimal(cost *mat.Dense) (Assignment, error) {

	nRows, nCols := cost.Dims()

	// extend to a square matrix of size rows+cols where every real row can
	// take a dummy column and vice versa at a price above any real pair, so
	// the solver assigns min(rows, cols) real pairs at minimum cost
	n := nRows + nCols
	pad := mat.Max(cost) + 1

	square := make([][]float64, n)

	for i := range square {
		square[i] = make([]float64, n)

		for j := range square[i] {
			switch {
			case i < nRows && j < nCols:
				square[i][j] = cost.At(i, j)
			case i >= nRows && j >= nCols:
				square[i][j] = 0
			default:
				square[i][j] = pad
			}
		}
	}

	rowsol, colsol, err := solveLAPJV(square)

	if err != nil {
		return Assignment{}, err
	}

	if err := checkSolution(rowsol, colsol); err != nil {
		return Assignment{}, err
	}

	var assign Assignment
	gate := 1 - a.iouThreshold
	usedCols := make([]bool, nCols)

	for i := 0; i < nRows; i++ {

		j := rowsol[i]

		if j < nCols && cost.At(i, j) < gate {
			assign.Matches = append(assign.Matches, Match{Track: i, Detection: j})
			usedCols[j] = true
			continue
		}

		assign.UnmatchedTracks = append(assign.UnmatchedTracks, i)
	}

	for j, used := range usedCols {
		if !used {
			assign.UnmatchedDetections = append(assign.UnmatchedDetections, j)
		}
	}

	return assign, nil
}

// greedy performs single pass greedy matching.  Detections are visited in
// descending confidence order and each claims the unclaimed track with the
// highest IoU above the threshold
func (a *Associator) greedy(cost *mat.Dense, dets []Detection) Assignment {

	nRows, nCols := cost.Dims()

	order := seq(nCols)
	sort.SliceStable(order, func(x, y int) bool {
		return dets[order[x]].Confidence > dets[order[y]].Confidence
	})

	trackUsed := make([]bool, nRows)
	detUsed := make([]bool, nCols)

	var assign Assignment

	for _, j := range order {

		best := -1
		bestIoU := a.iouThreshold

		for i := 0; i < nRows; i++ {
			if trackUsed[i] {
				continue
			}

			if iou := 1 - cost.At(i, j); iou > bestIoU {
				bestIoU = iou
				best = i
			}
		}

		if best < 0 {
			continue
		}

		trackUsed[best] = true
		detUsed[j] = true
		assign.Matches = append(assign.Matches, Match{Track: best, Detection: j})
	}

	for i, used := range trackUsed {
		if !used {
			assign.UnmatchedTracks = append(assign.UnmatchedTracks, i)
		}
	}

	for j, used := range detUsed {
		if !used {
			assign.UnmatchedDetections = append(assign.UnmatchedDetections, j)
		}
	}

	return assign
}

// checkSolution verifies the solver returned a permutation
func checkSolution(rowsol, colsol []int) error {

	n := len(rowsol)

	if len(colsol) != n {
		return fmt.Errorf("%w: %d row solutions and %d column solutions", ErrSolver, n, len(colsol))
	}

	for i, j := range rowsol {
		if j < 0 || j >= n || colsol[j] != i {
			return fmt.Errorf("%w: row %d assigned to column %d", ErrSolver, i, j)
		}
	}

	return nil
}

// seq returns the indexes 0..n-1
func seq(n int) []int {

	if n == 0 {
		return nil
	}

	s := make([]int, n)

	for i := range s {
		s[i] = i
	}

	return s
}
