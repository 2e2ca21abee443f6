// Package zentity holds project-level metadata shared by the library
// and the CLI.
package zentity

// Version is the zentity release version.
const Version = "v0.1.0"
