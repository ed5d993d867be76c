// Package ui implements the interactive terminal views.
//
// The watch view is a Bubble Tea program showing the live heater state
// in a bordered panel: run state, mode, targets, sensor readings and
// link health, re-read from the coordinator's snapshot once a second.
// Single keys issue commands (power toggle, temperature and level
// stepping); one command is in flight at a time and its progress is
// shown inline.
//
// Styles live in styles.go and share one palette across views.
package ui
