package project

import (
	"fmt"
	"strings"
)

// Limits bounds what a project may request. Zero disables a check.
type Limits struct {
	MaxDimension int
	MaxFrames    int
}

// ValidationError lists every problem found in a project.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid project: " + strings.Join(e.Problems, "; ")
}

// ErrorKind classifies the error for transport mapping.
func (e *ValidationError) ErrorKind() string { return "validation" }

// Validate checks p against limits and returns a *ValidationError naming
// every violation, or nil.
func (p *Project) Validate(limits Limits) error {
	s := p.Settings
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if limits.MaxDimension > 0 {
		if s.Width > limits.MaxDimension {
			add("Width exceeds maximum: %d", limits.MaxDimension)
		}
		if s.Height > limits.MaxDimension {
			add("Height exceeds maximum: %d", limits.MaxDimension)
		}
	}
	if s.Width <= 0 {
		add("Width must be positive")
	}
	if s.Height <= 0 {
		add("Height must be positive")
	}
	if s.Loop < -1 || s.Loop > MaxLoop {
		add("Loop count must be between -1 and %d", MaxLoop)
	}
	if s.DefaultDuration < 1 {
		add("Default duration must be positive")
	}
	if limits.MaxFrames > 0 && len(p.Frames) > limits.MaxFrames {
		add("Frame count exceeds maximum: %d", limits.MaxFrames)
	}
	for _, f := range p.Frames {
		if f.Duration < 1 {
			add("Frame %s has invalid duration: %d", f.ID, f.Duration)
			continue
		}
		if s.TransitionDuration > 0 && f.Duration < s.TransitionDuration {
			add("Frame %s duration %d is shorter than transition duration %d", f.ID, f.Duration, s.TransitionDuration)
		}
	}
	if s.TransitionDuration > 0 && s.TransitionSteps < 1 {
		add("Transition steps must be at least 1")
	}
	if s.TransitionDuration < 0 {
		add("Transition duration must not be negative")
	}
	if s.AlphaThreshold < 0 || s.AlphaThreshold > 255 {
		add("Alpha threshold must be between 0 and 255")
	}
	if _, err := s.Background(); err != nil {
		add("Invalid background color: %s", s.BackgroundColor)
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}
