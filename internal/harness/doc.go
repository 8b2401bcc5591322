// Package harness runs YAML-defined verification scenarios against a real
// engine. A scenario names a world document, a command script or a recorded
// sphere log, and assertions over the final state. Command tokens come from
// a sequence generator and every command is journaled to an in-memory
// store, so two runs of the same scenario produce byte-identical traces and
// golden-file comparison is meaningful.
package harness
