package engine

// QuotaEnforcer counts executed instructions and enforces a maximum steps
// limit for one run.
//
// The call depth limit stops runaway recursion; the step quota stops
// everything else, such as a While whose condition never turns false.
// A limit of zero or less disables the quota.
type QuotaEnforcer struct {
	maxSteps int // Maximum allowed steps for this run
	current  int // Current step count
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
//
// Returns a STEPS_EXCEEDED RuntimeError if the quota is exceeded.
// This is called once per executed instruction.
func (q *QuotaEnforcer) Check() error {
	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return NewStepsExceededError(q.current, q.maxSteps)
	}
	return nil
}

// Reset resets the step counter to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}
