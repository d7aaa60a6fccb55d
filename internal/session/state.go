package session

import (
	"fmt"

	"github.com/banshee-data/erg.report/internal/workout"
)

// State is the session-level state, layered over the stroke state.
type State int

const (
	WaitingForStart State = iota
	Rowing
	Paused
	Stopped
)

var stateNames = [...]string{
	WaitingForStart: "WaitingForStart",
	Rowing:          "Rowing",
	Paused:          "Paused",
	Stopped:         "Stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// CommandName identifies an inbound control command.
type CommandName string

const (
	CmdStart                  CommandName = "start"
	CmdStartOrResume          CommandName = "startOrResume"
	CmdPause                  CommandName = "pause"
	CmdStop                   CommandName = "stop"
	CmdReset                  CommandName = "reset"
	CmdUpdateIntervalSettings CommandName = "updateIntervalSettings"
	CmdRequestControl         CommandName = "requestControl"
	CmdShutdown               CommandName = "shutdown"
)

// Command is a control message from one of the transports. Intervals is only
// read by updateIntervalSettings.
type Command struct {
	Name      CommandName        `json:"command"`
	Intervals []workout.Interval `json:"intervals,omitempty"`
}

// Known reports whether the manager handles the command.
func (n CommandName) Known() bool {
	switch n {
	case CmdStart, CmdStartOrResume, CmdPause, CmdStop, CmdReset,
		CmdUpdateIntervalSettings, CmdRequestControl, CmdShutdown:
		return true
	}
	return false
}
