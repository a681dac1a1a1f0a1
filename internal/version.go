package internal

// Version is the current version of hermes.
// Release builds override it with -ldflags "-X hermes/internal.Version=...".
var Version = "0.1.0"
