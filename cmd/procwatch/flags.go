package main

import "time"

// Flag structs to decouple cobra from logic for testing.

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

type CheckFlags struct {
	ConfigPath string
	// MaxIdle overrides target.max_idle when non-zero.
	MaxIdle time.Duration
}

type StatusFlags struct {
	ConfigPath string
}

type StopFlags struct {
	ConfigPath string
}

type HistoryFlags struct {
	ConfigPath string
	Limit      int
	JSON       bool
}

type ServeFlags struct {
	ConfigPath string
	// Listen and BasePath override the [server] section when set.
	Listen   string
	BasePath string
}
