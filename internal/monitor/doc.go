// Package monitor watches a file or directory tree and reports changes as a
// closed set of event kinds.
//
// A Monitor owns one watch per directory: the root, plus every subdirectory
// found by the initial walk or created later when the monitor is recursive.
// Events from all of them are delivered through one dispatcher, first to the
// configured callback and then to subscribers in registration order. A
// subdirectory that is removed or renamed away gives up its watch, and the
// watches of everything below it.
//
// The initial walk is a snapshot. A directory created while the walk is in
// progress, after its parent was visited, is only picked up once a later
// Created event for it is observed.
package monitor
