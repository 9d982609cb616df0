package dfs

import "log"

// Debug is the active trace level. Level-0 traces are always on;
// higher levels are opt-in, e.g. via a CLI's -debug flag bound with
// flag.IntVar(&dfs.Debug, "debug", 0, ...).
var Debug = 0

// DPrintf logs format/a when level is at or below Debug.
func DPrintf(level int, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}
