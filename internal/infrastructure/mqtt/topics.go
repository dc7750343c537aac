package mqtt

import "fmt"

// TopicRoot is the first level of every deckscan topic.
//
// Hierarchy:
//
//	deckscan/{instrument}/status                    online/offline (retained, LWT)
//	deckscan/{instrument}/experiment/state          lifecycle state (retained)
//	deckscan/{instrument}/experiment/progress       latest progress snapshot (retained)
//	deckscan/{instrument}/experiment/point          one event per visited point
//	deckscan/{instrument}/experiment/scan           one event per finished scan
//	deckscan/{instrument}/command/experiment        start/stop/reset requests
//	deckscan/{instrument}/command/experiment/reply  command results
const TopicRoot = "deckscan"

// Topics builds the topics of one instrument.
//
//	topics := mqtt.Topics{Instrument: "scope-001"}
//	topics.Progress() // "deckscan/scope-001/experiment/progress"
type Topics struct {
	Instrument string
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%s", TopicRoot, t.Instrument)
}

// Status returns the instrument status topic.
//
// Example: deckscan/scope-001/status
func (t Topics) Status() string {
	return t.base() + "/status"
}

// =============================================================================
// Experiment Topics
// =============================================================================

// ExperimentState returns the retained lifecycle state topic.
func (t Topics) ExperimentState() string {
	return t.base() + "/experiment/state"
}

// Progress returns the retained progress topic.
func (t Topics) Progress() string {
	return t.base() + "/experiment/progress"
}

// PointEvents returns the topic for per-point events.
func (t Topics) PointEvents() string {
	return t.base() + "/experiment/point"
}

// ScanEvents returns the topic for per-scan events.
func (t Topics) ScanEvents() string {
	return t.base() + "/experiment/scan"
}

// =============================================================================
// Command Topics
// =============================================================================

// Command returns the topic experiment commands are received on.
//
// Example: deckscan/scope-001/command/experiment
func (t Topics) Command() string {
	return t.base() + "/command/experiment"
}

// CommandReply returns the topic command results are published on.
func (t Topics) CommandReply() string {
	return t.Command() + "/reply"
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// All returns a pattern matching every topic of this instrument.
//
// Pattern: deckscan/{instrument}/#
func (t Topics) All() string {
	return t.base() + "/#"
}

// AllStatuses returns a pattern matching the status of every instrument.
//
// Pattern: deckscan/+/status
func AllStatuses() string {
	return TopicRoot + "/+/status"
}
