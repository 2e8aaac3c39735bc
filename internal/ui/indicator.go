package ui

import "go.uber.org/atomic"

// Indicator is the loading indicator of one shell. Show and Hide are idempotent.
type Indicator struct {
	visible   atomic.Bool
	showCount atomic.Int64
	hideCount atomic.Int64
	onChange  func(visible bool)
}

// NewIndicator builds an indicator; onChange, when set, observes every visibility flip.
func NewIndicator(onChange func(visible bool)) *Indicator {
	return &Indicator{onChange: onChange}
}

func (indicator *Indicator) Show() {
	indicator.showCount.Inc()
	if indicator.visible.CompareAndSwap(false, true) && indicator.onChange != nil {
		indicator.onChange(true)
	}
}

func (indicator *Indicator) Hide() {
	indicator.hideCount.Inc()
	if indicator.visible.CompareAndSwap(true, false) && indicator.onChange != nil {
		indicator.onChange(false)
	}
}

func (indicator *Indicator) Visible() bool {
	return indicator.visible.Load()
}

// Counts returns how many times Show and Hide were called.
func (indicator *Indicator) Counts() (shows int64, hides int64) {
	return indicator.showCount.Load(), indicator.hideCount.Load()
}
