package ir

// Version constants for the program encoding and the engine.
const (
	// Version is the instruction encoding version. Bump it when the
	// canonical form of any instruction changes.
	Version = "1"

	// EngineVersion is reported by rpa --version.
	EngineVersion = "0.1.0"
)
