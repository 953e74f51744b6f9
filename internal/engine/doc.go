// Package engine implements the virtual machine that executes compiled
// workflow programs.
//
// A Machine runs one ir.Program start to finish on the calling goroutine.
// It owns the instruction pointer, the Global store, the main scenario's
// locals, a stack of call frames and a stack of error handlers. Nothing
// inside it is locked.
//
// Run Loop:
// At every instruction boundary the machine
// 1. drains pending commands (Stop maps to a stop request)
// 2. folds context cancellation into the stop flag
// 3. returns ErrStopped if the flag is set
// 4. emits a StateSnapshot if the snapshot interval has passed
// 5. executes the instruction and moves the instruction pointer
//
// Delay is the only blocking instruction. It sleeps in short slices so a
// stop is observed within one slice.
//
// Error Routing:
// EVAL_ERROR and ACTIVITY_ERROR are catchable. The topmost handler whose
// depth is at most the current call depth receives the error: deeper call
// frames are discarded, last_error is set and execution resumes at the
// handler's catch target. STACK_OVERFLOW and STEPS_EXCEEDED always end
// the run.
//
// Host Interface:
// Spawn starts a run on its own goroutine and returns a Handle carrying
// the outbound EventQueue (snapshots, log entries, completion or error)
// and the inbound Stop command.
package engine
