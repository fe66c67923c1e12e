// Package config resolves the workspace configuration of an epic project.
//
// Values are layered, later sources winning:
//
//  1. built-in defaults (auto toolchain, x64, debug, history on)
//  2. epic.yaml in the project root, checked against the #Workspace CUE schema
//  3. the project's .env file
//  4. the process environment (EPIC_LOCAL_REPO, EPIC_TOOLCHAIN, EPIC_ARCH,
//     EPIC_VARIANT, LOG_LEVEL)
//  5. command-line overrides
//
// The result is validated with go-playground/validator and returned by value.
//
// The package also hosts the SchemaRegistry, which the packages package uses
// to check package.json manifests against the #Manifest schema.
package config
