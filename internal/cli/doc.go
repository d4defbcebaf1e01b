// Package cli wires the mammothctl commands: parsing flags, configuring
// logging, and translating failures into process exit codes.
package cli
