package tracker

import (
	"errors"
	"fmt"
	"math"
)

// lapLarge stands in for infinity in the dual variables
const lapLarge = 1e6

// ErrSolver is returned when the LAP solver cannot produce a valid assignment
var ErrSolver = errors.New("lap solver failed")

// lapjv holds the working state of the dense Jonker-Volgenant solver for a
// square cost matrix.  x[i] is the column assigned to row i and y[j] is the
// row assigned to column j
type lapjv struct {
	n        int
	cost     [][]float64
	x        []int
	y        []int
	v        []float64
	freeRows []int
}

// solveLAPJV solves the square linear assignment problem minimising total
// cost and returns the row and column solutions
func solveLAPJV(cost [][]float64) (rowsol, colsol []int, err error) {

	n := len(cost)

	if n == 0 {
		return nil, nil, nil
	}

	for i, row := range cost {
		if len(row) != n {
			return nil, nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrSolver, i, len(row), n)
		}

		for _, c := range row {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return nil, nil, fmt.Errorf("%w: non finite cost in row %d", ErrSolver, i)
			}
		}
	}

	s := &lapjv{
		n:        n,
		cost:     cost,
		x:        make([]int, n),
		y:        make([]int, n),
		v:        make([]float64, n),
		freeRows: make([]int, n),
	}

	nFree := s.columnReduction()

	for i := 0; nFree > 0 && i < 2; i++ {
		nFree = s.augmentingRowReduction(nFree)
	}

	if nFree > 0 {
		if err := s.augment(nFree); err != nil {
			return nil, nil, err
		}
	}

	return s.x, s.y, nil
}

// columnReduction performs column reduction and reduction transfer, returning
// the number of rows left unassigned
func (s *lapjv) columnReduction() int {

	n := s.n
	unique := make([]bool, n)

	for i := 0; i < n; i++ {
		s.x[i] = -1
		s.v[i] = lapLarge
		s.y[i] = 0
		unique[i] = true
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if c := s.cost[i][j]; c < s.v[j] {
				s.v[j] = c
				s.y[j] = i
			}
		}
	}

	for j := n - 1; j >= 0; j-- {
		i := s.y[j]
		if s.x[i] < 0 {
			s.x[i] = j
		} else {
			unique[i] = false
			s.y[j] = -1
		}
	}

	nFree := 0

	for i := 0; i < n; i++ {

		if s.x[i] < 0 {
			s.freeRows[nFree] = i
			nFree++
			continue
		}

		if !unique[i] {
			continue
		}

		j := s.x[i]
		minVal := lapLarge

		for j2 := 0; j2 < n; j2++ {
			if j2 == j {
				continue
			}

			if c := s.cost[i][j2] - s.v[j2]; c < minVal {
				minVal = c
			}
		}

		s.v[j] -= minVal
	}

	return nFree
}

// augmentingRowReduction tries to assign the free rows by lowering column
// prices, returning the number of rows still free
func (s *lapjv) augmentingRowReduction(nFree int) int {

	n := s.n
	current := 0
	newFree := 0
	rrCnt := 0

	for current < nFree {

		rrCnt++
		freeI := s.freeRows[current]
		current++

		// find the lowest and second lowest reduced cost of the row
		j1 := 0
		v1 := s.cost[freeI][0] - s.v[0]
		j2 := -1
		v2 := lapLarge

		for j := 1; j < n; j++ {
			c := s.cost[freeI][j] - s.v[j]
			if c < v2 {
				if c >= v1 {
					v2 = c
					j2 = j
				} else {
					v2 = v1
					v1 = c
					j2 = j1
					j1 = j
				}
			}
		}

		i0 := s.y[j1]
		v1New := s.v[j1] - (v2 - v1)
		v1Lowers := v1New < s.v[j1]

		if rrCnt < current*n {
			if v1Lowers {
				s.v[j1] = v1New
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = s.y[j2]
			}

			if i0 >= 0 {
				if v1Lowers {
					current--
					s.freeRows[current] = i0
				} else {
					s.freeRows[newFree] = i0
					newFree++
				}
			}
		} else if i0 >= 0 {
			s.freeRows[newFree] = i0
			newFree++
		}

		s.x[freeI] = j1
		s.y[j1] = freeI
	}

	return newFree
}

// findMinColumns moves the columns with the minimum d[j] onto the SCAN list
// starting at lo and returns the new end of the list
func (s *lapjv) findMinColumns(lo int, d []float64, cols []int) int {

	hi := lo + 1
	mind := d[cols[lo]]

	for k := hi; k < s.n; k++ {

		j := cols[k]

		if d[j] <= mind {
			if d[j] < mind {
				hi = lo
				mind = d[j]
			}

			cols[k] = cols[hi]
			cols[hi] = j
			hi++
		}
	}

	return hi
}

// scan relaxes the columns not yet scanned using the columns on the SCAN list.  It
// returns an unassigned column once one is reached at minimum distance,
// otherwise -1
func (s *lapjv) scan(lo, hi *int, d []float64, cols, pred []int) int {

	for *lo != *hi {

		j := cols[*lo]
		*lo++
		i := s.y[j]
		mind := d[j]
		h := s.cost[i][j] - s.v[j] - mind

		for k := *hi; k < s.n; k++ {
			j = cols[k]
			credIJ := s.cost[i][j] - s.v[j] - h

			if credIJ < d[j] {
				d[j] = credIJ
				pred[j] = i

				if credIJ == mind {
					if s.y[j] < 0 {
						return j
					}

					cols[k] = cols[*hi]
					cols[*hi] = j
					*hi++
				}
			}
		}
	}

	return -1
}

// shortestPath runs one Dijkstra style search from a free row and returns
// the unassigned column ending the augmenting path
func (s *lapjv) shortestPath(startI int, pred []int) int {

	n := s.n
	lo := 0
	hi := 0
	finalJ := -1
	nReady := 0
	cols := make([]int, n)
	d := make([]float64, n)

	for j := 0; j < n; j++ {
		cols[j] = j
		pred[j] = startI
		d[j] = s.cost[startI][j] - s.v[j]
	}

	for finalJ == -1 {

		// SCAN list is empty
		if lo == hi {
			nReady = lo
			hi = s.findMinColumns(lo, d, cols)

			for k := lo; k < hi; k++ {
				if j := cols[k]; s.y[j] < 0 {
					finalJ = j
				}
			}
		}

		if finalJ == -1 {
			finalJ = s.scan(&lo, &hi, d, cols, pred)
		}
	}

	mind := d[cols[lo]]

	for k := 0; k < nReady; k++ {
		j := cols[k]
		s.v[j] += d[j] - mind
	}

	return finalJ
}

// augment assigns each remaining free row along its shortest augmenting path
func (s *lapjv) augment(nFree int) error {

	pred := make([]int, s.n)

	for _, freeI := range s.freeRows[:nFree] {

		i := -1
		k := 0

		j := s.shortestPath(freeI, pred)

		if j < 0 || j >= s.n {
			return fmt.Errorf("%w: augmenting path ended at column %d", ErrSolver, j)
		}

		for i != freeI {

			i = pred[j]
			s.y[j] = i
			j, s.x[i] = s.x[i], j
			k++

			if i != freeI && k >= s.n {
				return fmt.Errorf("%w: augmenting path longer than %d", ErrSolver, s.n)
			}
		}
	}

	return nil
}
