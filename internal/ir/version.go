package ir

// Version constants for payload schema and engine.
const (
	// SchemaVersion is the inbound/outbound payload schema version.
	SchemaVersion = "1"

	// EngineVersion is the jagtrack engine version.
	EngineVersion = "0.1.0"
)
