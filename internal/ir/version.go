package ir

// Version constants for the translator and its journal format.
const (
	// TranslatorVersion is recorded on every journaled write batch.
	TranslatorVersion = "0.1.0"

	// JournalFormat is bumped whenever the journaled op payload changes shape.
	JournalFormat = "1"
)
