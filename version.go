package knot

// Version is the release of the knot module, overridden at build time with
// -ldflags "-X github.com/aretw0/knot.Version=...".
var Version = "dev"
