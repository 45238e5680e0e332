// Package viz renders solver output in the terminal.
//
// It provides ASCII plots of convergence histories and trajectory
// components via asciigraph, plus lipgloss styles for the solve
// summary printed by the CLI.
package viz
