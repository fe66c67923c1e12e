// Package driver runs epic commands against a project root.
//
// A Driver resolves the workspace configuration once and then serves the
// commands of the CLI:
//
//   - Init creates graph.csv from the sources in the root.
//   - Build brings every final artifact up to date.
//   - Clean removes produced artifacts and the directories left empty.
//   - Plan, Validate, Graph, Deps and Header inspect the project.
//   - History and RunDetail read the build history.
//   - Watch rebuilds when sources change.
//
// Commands that write to the project hold an advisory lock on .epic.lock in
// the root for their duration. Build, Clean and Init are recorded as runs
// in the history database and reported through telemetry.
package driver
