// Package editlog provides the append-only event log that is the
// authoritative history of a buffer.
//
// Every edit is recorded as an Event carrying its payload: the inserted
// bytes for an insert, the removed bytes for a delete. That makes every
// event invertible, so undo and redo are pure log operations:
//
//	v := log.Append(ev)     // pointer forward, redo tail cleared
//	step, ok := log.Undo()  // step.Version is the version to return to
//	step, ok = log.Redo()   // and step.Events are the changes to apply
//
// # Groups
//
// Events appended between BeginGroup and EndGroup undo and redo as one
// unit. A multi-cursor keystroke is one group.
//
// # Garbage collection
//
// GC drops the oldest applied events up to a low-water version and rebases
// the log there. The caller computes the low-water mark as the oldest
// version any live iterator or the undo window still needs, so nothing
// reachable from them is discarded. Replay from the base version
// reproduces the current content.
package editlog
