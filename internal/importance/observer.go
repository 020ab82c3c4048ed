package importance

import (
	"github.com/rs/zerolog"
)

// Observer is notified after each step commits its winning predictor.
type Observer interface {
	OnStepComplete(step int, predictor string, cost float64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(step int, predictor string, cost float64)

func (f ObserverFunc) OnStepComplete(step int, predictor string, cost float64) {
	f(step, predictor, cost)
}

// LogObserver writes one structured log line per completed step.
type LogObserver struct {
	Logger zerolog.Logger
	Run    string
}

func (o LogObserver) OnStepComplete(step int, predictor string, cost float64) {
	o.Logger.Info().
		Str("run", o.Run).
		Int("step", step).
		Str("predictor", predictor).
		Float64("cost", cost).
		Msg("Permutation step complete")
}

// Observers fans a notification out to several observers in order.
type Observers []Observer

func (obs Observers) OnStepComplete(step int, predictor string, cost float64) {
	for _, o := range obs {
		o.OnStepComplete(step, predictor, cost)
	}
}
