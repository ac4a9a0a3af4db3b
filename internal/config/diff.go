package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only the log level can be applied while running; every other change is
// listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart, in declaration order.
	RestartRequired []string
}

// Changed reports whether anything differs between the two configs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if oldServer != newServer {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Persona != new.Persona {
		d.RestartRequired = append(d.RestartRequired, "persona")
	}
	if !practiceEqual(old.Practice, new.Practice) {
		d.RestartRequired = append(d.RestartRequired, "practice")
	}
	if old.Display != new.Display {
		d.RestartRequired = append(d.RestartRequired, "display")
	}
	return d
}

func practiceEqual(a, b PracticeConfig) bool {
	if !slices.Equal(a.Words, b.Words) {
		return false
	}
	a.Words, b.Words = nil, nil
	return reflect.DeepEqual(a, b)
}
