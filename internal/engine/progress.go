package engine

import "github.com/schollz/progressbar/v3"

// Progress tracks how far through a build the engine is, so a service
// layer (or a terminal user) can follow a long valuation run. A nil
// Progress is valid and counts nothing.
type Progress struct {
	bar *progressbar.ProgressBar
}

func NewProgress() *Progress {
	return &Progress{}
}

// Initialise starts a new phase with the given number of steps.
func (p *Progress) Initialise(description string, steps int) {
	if p == nil {
		return
	}
	p.bar = progressbar.NewOptions(steps,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// Increment advances the current phase by one step.
func (p *Progress) Increment() {
	if p == nil || p.bar == nil {
		return
	}
	p.bar.Add(1)
}
