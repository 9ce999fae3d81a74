package tracker

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidBox is returned for a detection whose bounding box has non
	// finite coordinates or a non positive width or height
	ErrInvalidBox = errors.New("invalid bounding box")
	// ErrInvalidConfidence is returned for a detection whose confidence is
	// not a finite value in the range [0,1]
	ErrInvalidConfidence = errors.New("invalid confidence")
)

// Detection represents one object observed by the detector in a single frame
type Detection struct {
	// Box is the bounding box of the detected object
	Box Box `json:"bbox"`
	// Confidence is the detector score of the object in the range [0,1]
	Confidence float64 `json:"confidence"`
	// ClassID is the class index the detector assigned
	ClassID int `json:"class_id"`
	// ClassName is the human readable label of ClassID
	ClassName string `json:"class_name"`
}

// NewDetection is a constructor function for the Detection struct
func NewDetection(box Box, confidence float64, classID int, className string) Detection {
	return Detection{
		Box:        box,
		Confidence: confidence,
		ClassID:    classID,
		ClassName:  className,
	}
}

// Validate checks the detection is well formed before it is handed to the
// tracker
func (d Detection) Validate() error {

	if !d.Box.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidBox, d.Box)
	}

	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, d.Confidence)
	}

	return nil
}

// Rejection records a detection that was refused by validation
type Rejection struct {
	// Index is the position of the detection in the input slice
	Index     int
	Detection Detection
	Err       error
}

func (r Rejection) Error() string {
	return fmt.Sprintf("detection %d rejected: %v", r.Index, r.Err)
}

func (r Rejection) Unwrap() error {
	return r.Err
}

// FilterValid splits detections into those that pass validation and the
// rejections for those that do not.  Order of the valid detections is
// preserved
func FilterValid(dets []Detection) ([]Detection, []Rejection) {

	valid := make([]Detection, 0, len(dets))
	var rejected []Rejection

	for i, det := range dets {
		if err := det.Validate(); err != nil {
			rejected = append(rejected, Rejection{
				Index:     i,
				Detection: det,
				Err:       err,
			})
			continue
		}

		valid = append(valid, det)
	}

	return valid, rejected
}
