// Package oplog adds the one logr has no native level for: opkg's NOTICE,
// used throughout the resolver for conditions that are worth a human's
// attention but aren't errors (multiple held packages, a greedy
// dependency satisfied, a suggestion skipped). It is rendered as an Info
// log carrying a "level":"NOTICE" field rather than inventing a
// verbosity number that would collide with logr's V(n) convention.
package oplog

import "github.com/go-logr/logr"

// Notice logs msg at NOTICE level with the given key/value pairs.
func Notice(log logr.Logger, msg string, keysAndValues ...any) {
	log.Info(msg, append([]any{"level", "NOTICE"}, keysAndValues...)...)
}
