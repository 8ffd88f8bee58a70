// Package watcher is the native path-watch backend used by filemonitor.
//
// A Watcher shares one fsnotify instance between every registered path and
// drives all registrations from a single run loop, so callbacks registered
// through Watch are never invoked concurrently with each other. Each
// registration observes exactly one path; recursion is layered on top by the
// monitor package.
package watcher
