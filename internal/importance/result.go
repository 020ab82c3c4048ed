package importance

import (
	"fmt"
	"sort"
)

// Entry pairs a predictor with the cost measured after permuting it.
type Entry struct {
	Predictor string  `json:"predictor"`
	Cost      float64 `json:"cost"`
}

// Result holds the outcome of one permutation test.
type Result struct {
	OriginalCost float64

	// Step1 holds the single-pass costs in predictor order. Each cost comes
	// from permuting that predictor alone.
	Step1 []Entry

	// Cumulative holds the multi-pass ranking in order of removal. Each cost
	// is measured with this and every earlier predictor permuted.
	Cumulative []Entry
}

// Step1Ranking returns the single-pass entries sorted from most to least
// damaging. Equal costs keep predictor order.
func (r *Result) Step1Ranking() []Entry {
	ranked := append([]Entry(nil), r.Step1...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Cost > ranked[j].Cost
	})
	return ranked
}

// Record is the persisted form of a Result. Names and costs are parallel
// sequences so that step order survives serialization.
type Record struct {
	PermutedPredictorNameByStep []string  `json:"permuted_predictor_name_by_step" yaml:"permuted_predictor_name_by_step"`
	HighestCostByStep           []float64 `json:"highest_cost_by_step" yaml:"highest_cost_by_step"`
	OriginalCost                float64   `json:"original_cost" yaml:"original_cost"`
	PredictorNamesStep1         []string  `json:"predictor_names_step1" yaml:"predictor_names_step1"`
	CostsStep1                  []float64 `json:"costs_step1" yaml:"costs_step1"`
}

// Record converts r to its persisted form.
func (r *Result) Record() Record {
	rec := Record{
		PermutedPredictorNameByStep: make([]string, len(r.Cumulative)),
		HighestCostByStep:           make([]float64, len(r.Cumulative)),
		OriginalCost:                r.OriginalCost,
		PredictorNamesStep1:         make([]string, len(r.Step1)),
		CostsStep1:                  make([]float64, len(r.Step1)),
	}
	for i, e := range r.Cumulative {
		rec.PermutedPredictorNameByStep[i] = e.Predictor
		rec.HighestCostByStep[i] = e.Cost
	}
	for i, e := range r.Step1 {
		rec.PredictorNamesStep1[i] = e.Predictor
		rec.CostsStep1[i] = e.Cost
	}
	return rec
}

// Result converts a persisted record back into a Result.
func (rec Record) Result() (*Result, error) {
	if len(rec.PermutedPredictorNameByStep) != len(rec.HighestCostByStep) {
		return nil, fmt.Errorf("importance: record has %d step names but %d step costs",
			len(rec.PermutedPredictorNameByStep), len(rec.HighestCostByStep))
	}
	if len(rec.PredictorNamesStep1) != len(rec.CostsStep1) {
		return nil, fmt.Errorf("importance: record has %d step-1 names but %d step-1 costs",
			len(rec.PredictorNamesStep1), len(rec.CostsStep1))
	}

	r := &Result{
		OriginalCost: rec.OriginalCost,
		Step1:        make([]Entry, len(rec.CostsStep1)),
		Cumulative:   make([]Entry, len(rec.HighestCostByStep)),
	}
	for i := range r.Cumulative {
		r.Cumulative[i] = Entry{Predictor: rec.PermutedPredictorNameByStep[i], Cost: rec.HighestCostByStep[i]}
	}
	for i := range r.Step1 {
		r.Step1[i] = Entry{Predictor: rec.PredictorNamesStep1[i], Cost: rec.CostsStep1[i]}
	}
	return r, nil
}
