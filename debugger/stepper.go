// Copyright © 2018 The ELPS authors

package debugger

// StepMode represents the current stepping behavior.
type StepMode int

const (
	// StepNone means no stepping is active (free-running).
	StepNone StepMode = iota
	// StepInto pauses on the next step boundary regardless of depth.
	StepInto
	// StepOver pauses on the next step boundary where the invocation depth
	// is <= the recorded depth.
	StepOver
	// StepOut pauses on the next step boundary where the invocation depth
	// is < the recorded depth.
	StepOut
)

func (m StepMode) String() string {
	switch m {
	case StepInto:
		return "step-in"
	case StepOver:
		return "step-over"
	case StepOut:
		return "step-out"
	default:
		return "none"
	}
}

// Stepper implements the step state machine. It tracks the step mode and
// the invocation depth recorded when the step began to determine when
// stepping should pause.
//
// Stepper is NOT safe for concurrent use. The session owns it and drives it
// from its stepping loop.
type Stepper struct {
	mode  StepMode
	depth int // invocation depth when the step command was issued
}

// NewStepper returns a stepper in the StepNone state.
func NewStepper() *Stepper {
	return &Stepper{}
}

// Mode returns the current step mode.
func (s *Stepper) Mode() StepMode {
	return s.mode
}

// Depth returns the invocation depth recorded when the step began.
func (s *Stepper) Depth() int {
	return s.depth
}

// Reset clears the stepper to StepNone (free-running).
func (s *Stepper) Reset() {
	s.mode = StepNone
	s.depth = 0
}

// SetStepInto configures the stepper to pause on the next boundary.
func (s *Stepper) SetStepInto(currentDepth int) {
	s.mode = StepInto
	s.depth = currentDepth
}

// SetStepOver configures the stepper to pause on the next boundary at the
// same or lesser depth.
func (s *Stepper) SetStepOver(currentDepth int) {
	s.mode = StepOver
	s.depth = currentDepth
}

// SetStepOut configures the stepper to pause on the next boundary at a
// lesser depth (i.e., after the current method returns).
func (s *Stepper) SetStepOut(currentDepth int) {
	s.mode = StepOut
	s.depth = currentDepth
}

// ShouldPause returns true if the stepper should cause a pause at the
// given invocation depth. boundary reports whether the current instruction
// is a step boundary. After returning true, the stepper resets to
// StepNone.
func (s *Stepper) ShouldPause(currentDepth int, boundary bool) bool {
	if !boundary {
		return false
	}
	switch s.mode {
	case StepInto:
		s.mode = StepNone
		return true
	case StepOver:
		if currentDepth > s.depth {
			// Inside a method called from the step origin, skip.
			return false
		}
		s.mode = StepNone
		return true
	case StepOut:
		if currentDepth < s.depth {
			s.mode = StepNone
			return true
		}
		return false
	default:
		return false
	}
}
