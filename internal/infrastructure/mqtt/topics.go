package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the tracker hierarchy.
const (
	TopicPrefix        = "tracker"
	TopicPrefixRuntime = "tracker/runtime"
	TopicPrefixEvent   = "tracker/event"
	TopicPrefixSystem  = "tracker/system"
)

// Topics provides builders for Tracker Core MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.TrackerMoved("LHR-1A2B3C4D")
//	// Returns: "tracker/event/moved/LHR-1A2B3C4D"
type Topics struct{}

// RuntimeSnapshot is where the headset-side bridge publishes device snapshots.
func (Topics) RuntimeSnapshot() string {
	return TopicPrefixRuntime + "/snapshot"
}

// RuntimeStatus is where the bridge publishes its retained connection status.
func (Topics) RuntimeStatus() string {
	return TopicPrefixRuntime + "/status"
}

// RuntimeConfig carries settings forwarded to the bridge (retained).
func (Topics) RuntimeConfig() string {
	return TopicPrefixRuntime + "/config"
}

// TrackerMoved returns the moved-event topic for a device serial.
// Characters that are special in MQTT topics are replaced with '_'.
func (Topics) TrackerMoved(serial string) string {
	return fmt.Sprintf("%s/moved/%s", TopicPrefixEvent, topicSegment(serial))
}

// AllTrackerMoved matches every moved-event topic.
func (Topics) AllTrackerMoved() string {
	return TopicPrefixEvent + "/moved/+"
}

// SystemStatus is the retained online/offline status of Tracker Core.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllTopics matches every tracker topic.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// topicSegment makes s safe to use as a single topic level.
func topicSegment(s string) string {
	if s == "" {
		return "_"
	}
	return segmentReplacer.Replace(s)
}
