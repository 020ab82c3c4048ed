// Package verification scores binary probabilistic forecasts against
// observed labels: contingency-table scores at one threshold and the ROC
// curve over many.
package verification

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
)

var ErrInput = errors.New("verification: invalid input")

// DefaultNumThresholds is the number of evenly spaced probability
// thresholds used for the ROC curve.
const DefaultNumThresholds = 1001

// Contingency is the 2x2 table of forecast versus observed outcomes.
type Contingency struct {
	Hits         int `json:"hits"`          // a: forecast yes, observed yes
	FalseAlarms  int `json:"false_alarms"`  // b: forecast yes, observed no
	Misses       int `json:"misses"`        // c: forecast no, observed yes
	CorrectNulls int `json:"correct_nulls"` // d: forecast no, observed no
}

// NewContingency counts outcomes with forecast yes when p >= threshold.
func NewContingency(labels []int, probabilities []float64, threshold float64) (Contingency, error) {
	if err := checkInput(labels, probabilities); err != nil {
		return Contingency{}, err
	}

	var ct Contingency
	for i, p := range probabilities {
		yes := p >= threshold
		switch {
		case yes && labels[i] == 1:
			ct.Hits++
		case yes:
			ct.FalseAlarms++
		case labels[i] == 1:
			ct.Misses++
		default:
			ct.CorrectNulls++
		}
	}
	return ct, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}

// POD is the probability of detection, a/(a+c).
func (c Contingency) POD() float64 { return ratio(c.Hits, c.Hits+c.Misses) }

// POFD is the probability of false detection, b/(b+d).
func (c Contingency) POFD() float64 { return ratio(c.FalseAlarms, c.FalseAlarms+c.CorrectNulls) }

// SuccessRatio is a/(a+b).
func (c Contingency) SuccessRatio() float64 { return ratio(c.Hits, c.Hits+c.FalseAlarms) }

// CSI is the critical success index, a/(a+b+c).
func (c Contingency) CSI() float64 { return ratio(c.Hits, c.Hits+c.FalseAlarms+c.Misses) }

// FrequencyBias is (a+b)/(a+c).
func (c Contingency) FrequencyBias() float64 {
	return ratio(c.Hits+c.FalseAlarms, c.Hits+c.Misses)
}

// PeirceScore is POD - POFD.
func (c Contingency) PeirceScore() float64 { return c.POD() - c.POFD() }

// Accuracy is (a+d)/n.
func (c Contingency) Accuracy() float64 {
	return ratio(c.Hits+c.CorrectNulls, c.Hits+c.FalseAlarms+c.Misses+c.CorrectNulls)
}

// FOCN is the frequency of correct nulls, d/(c+d).
func (c Contingency) FOCN() float64 { return ratio(c.CorrectNulls, c.Misses+c.CorrectNulls) }

// ROC holds POD and POFD at each probability threshold.
type ROC struct {
	Thresholds []float64 `json:"thresholds"`
	POD        []float64 `json:"pod"`
	POFD       []float64 `json:"pofd"`
}

// ROCCurve evaluates POD and POFD at numThresholds evenly spaced
// thresholds from 0 to 1. Both classes must be present.
func ROCCurve(labels []int, probabilities []float64, numThresholds int) (*ROC, error) {
	if err := checkInput(labels, probabilities); err != nil {
		return nil, err
	}
	if numThresholds < 2 {
		return nil, fmt.Errorf("%w: need at least 2 thresholds, got %d", ErrInput, numThresholds)
	}
	if err := checkBothClasses(labels); err != nil {
		return nil, err
	}

	roc := &ROC{
		Thresholds: floats.Span(make([]float64, numThresholds), 0, 1),
		POD:        make([]float64, numThresholds),
		POFD:       make([]float64, numThresholds),
	}
	for i, threshold := range roc.Thresholds {
		ct, err := NewContingency(labels, probabilities, threshold)
		if err != nil {
			return nil, err
		}
		roc.POD[i] = ct.POD()
		roc.POFD[i] = ct.POFD()
	}
	return roc, nil
}

// Area returns the area under the curve by the trapezoidal rule, with the
// (0, 0) and (1, 1) corners included.
func (r *ROC) Area() float64 {
	type point struct{ x, y float64 }
	pts := make([]point, 0, len(r.POFD)+2)
	pts = append(pts, point{0, 0}, point{1, 1})
	for i := range r.POFD {
		pts = append(pts, point{r.POFD[i], r.POD[i]})
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})

	x := make([]float64, len(pts))
	y := make([]float64, len(pts))
	for i, p := range pts {
		x[i], y[i] = p.x, p.y
	}
	return integrate.Trapezoidal(x, y)
}

// Scores summarizes a forecast set at one decision threshold.
type Scores struct {
	NumExamples   int         `json:"num_examples"`
	NumPositive   int         `json:"num_positive"`
	Threshold     float64     `json:"threshold"`
	AUC           float64     `json:"area_under_roc"`
	POD           float64     `json:"pod"`
	POFD          float64     `json:"pofd"`
	SuccessRatio  float64     `json:"success_ratio"`
	CSI           float64     `json:"csi"`
	FrequencyBias float64     `json:"frequency_bias"`
	PeirceScore   float64     `json:"peirce_score"`
	Accuracy      float64     `json:"accuracy"`
	Table         Contingency `json:"contingency"`
}

// Evaluate computes Scores. Ratios left undefined by an empty table row
// or column are reported as zero.
func Evaluate(labels []int, probabilities []float64, threshold float64) (*Scores, error) {
	roc, err := ROCCurve(labels, probabilities, DefaultNumThresholds)
	if err != nil {
		return nil, err
	}
	ct, err := NewContingency(labels, probabilities, threshold)
	if err != nil {
		return nil, err
	}

	return &Scores{
		NumExamples:   len(labels),
		NumPositive:   ct.Hits + ct.Misses,
		Threshold:     threshold,
		AUC:           roc.Area(),
		POD:           finiteOrZero(ct.POD()),
		POFD:          finiteOrZero(ct.POFD()),
		SuccessRatio:  finiteOrZero(ct.SuccessRatio()),
		CSI:           finiteOrZero(ct.CSI()),
		FrequencyBias: finiteOrZero(ct.FrequencyBias()),
		PeirceScore:   finiteOrZero(ct.PeirceScore()),
		Accuracy:      finiteOrZero(ct.Accuracy()),
		Table:         ct,
	}, nil
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func checkInput(labels []int, probabilities []float64) error {
	if len(labels) == 0 {
		return fmt.Errorf("%w: no examples", ErrInput)
	}
	if len(labels) != len(probabilities) {
		return fmt.Errorf("%w: %d labels but %d probabilities", ErrInput, len(labels), len(probabilities))
	}
	for i, l := range labels {
		if l != 0 && l != 1 {
			return fmt.Errorf("%w: label %d at index %d is not 0 or 1", ErrInput, l, i)
		}
	}
	return nil
}

func checkBothClasses(labels []int) error {
	var pos int
	for _, l := range labels {
		pos += l
	}
	if pos == 0 || pos == len(labels) {
		return fmt.Errorf("%w: labels must contain both classes", ErrInput)
	}
	return nil
}
