package main

// Prefix is a prefix used for environment variables containing gateway
// configuration.
const Prefix = "HSM_GW"

var (
	// Build is a timestamp of the build.
	Build = "now"

	// Version is gateway version.
	Version = "dev"
)
