// Package defaults provides embedded starter files for the minimcp
// init subcommand.
package defaults

import _ "embed"

// ConfigYAML is the example configuration file.
//
//go:embed config.example.yaml
var ConfigYAML []byte

// NotesMD is the example project notes file.
//
//go:embed notes.example.md
var NotesMD []byte
