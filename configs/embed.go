// Package configs provides embedded configuration templates for amandocs.
//
// Templates are embedded at build time so `amandocs config init` works
// from any distribution (go install, binary release).
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config NewConfig())
//  2. User config (~/.config/amandocs/config.yaml)
//  3. Project config (.amandocs.yaml or .amandocs.toml)
//  4. Project .env file
//  5. Environment variables (AMANDOCS_*)
package configs

import _ "embed"

// ProjectConfigTemplate is the template written by `amandocs config init`
// to .amandocs.yaml in the project root.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
