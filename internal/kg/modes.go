package kg

import "fmt"

// Mode selects which side effects a build run performs. Modes are terminal
// configurations chosen once per invocation; no mode depends on a prior one.
type Mode string

const (
	// ModeTest runs extraction only: no index writes, no graph writes.
	ModeTest Mode = "test"
	// ModeAppend extracts, adds to the indices, and appends to the graph
	// without clearing anything.
	ModeAppend Mode = "append"
	// ModeRebuild clears the chunk index and the graph data, then extracts,
	// commits, and indexes from scratch.
	ModeRebuild Mode = "rebuild"
	// ModeRebuildVector rebuilds the vector indices from the already
	// committed graph, skipping extraction and graph writes entirely.
	ModeRebuildVector Mode = "rebuild-vector"
)

// ParseMode maps a request string to a Mode. Empty means ModeTest, the
// no-side-effect default.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeTest, nil
	case ModeTest, ModeAppend, ModeRebuild, ModeRebuildVector:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown build mode %q", s)
	}
}

// effects is the per-mode policy: which mutations the run may perform.
type effects struct {
	doIndex       bool
	doClearIndex  bool
	doClearGraph  bool
	doCommitGraph bool
}

func (m Mode) effects() effects {
	switch m {
	case ModeAppend:
		return effects{doIndex: true, doCommitGraph: true}
	case ModeRebuild:
		return effects{doIndex: true, doClearIndex: true, doClearGraph: true, doCommitGraph: true}
	case ModeRebuildVector:
		return effects{doIndex: true, doClearIndex: true}
	default:
		return effects{}
	}
}
