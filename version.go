package arbiter

// Version is the engine release, overridable at build time via
// -ldflags "-X github.com/aretw0/arbiter.Version=...".
var Version = "0.1.0"
