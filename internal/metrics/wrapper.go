package metrics

// Wrapper adapts Metrics to the small metric interfaces consumed by the
// scoring and importance packages, which keeps those packages free of
// Prometheus imports.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) ScorerCallsInc() {
	w.m.ScorerCalls.Inc()
}

func (w *Wrapper) ScorerFailuresInc() {
	w.m.ScorerFailures.Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *Wrapper) ScorerLatencyObserve(seconds float64) {
	w.m.ScorerLatency.Observe(seconds)
}

func (w *Wrapper) ScoredExamplesAdd(n int) {
	w.m.ScoredExamples.Add(float64(n))
}

func (w *Wrapper) TrialsInc() {
	w.m.Trials.Inc()
}

func (w *Wrapper) TrialCostObserve(cost float64) {
	w.m.TrialCost.Observe(cost)
}

func (w *Wrapper) StepCompleted(cost float64) {
	w.m.Steps.Inc()
	w.m.CumulativeCost.Set(cost)
}

func (w *Wrapper) OriginalCostSet(cost float64) {
	w.m.OriginalCost.Set(cost)
}
