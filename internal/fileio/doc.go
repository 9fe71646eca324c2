// Package fileio runs file reads, saves and change watching off the editor
// loop.
//
// Results reach the loop as bridge messages: Loaded for a read, Saved for
// a save and Changed when a watched file is modified by another program.
// Saves write an immutable snapshot to a temporary file in the target
// directory and rename it into place, so a reader never sees a partial
// file.
package fileio
