package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
const (
	TopicPrefixRoot   = "schoolhub"
	TopicPrefixCore   = "schoolhub/core"
	TopicPrefixSystem = "schoolhub/system"
)

// Topics builds SchoolHub MQTT topic names.
//
//	topic := mqtt.Topics{}.CoreEvent("login")
//	// "schoolhub/core/event/login"
type Topics struct{}

// CoreEvent returns the topic for an auth or session event.
//
// Example: schoolhub/core/event/login
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: schoolhub/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCoreEvents matches every core event.
//
// Pattern: schoolhub/core/event/+
func (Topics) AllCoreEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixCore)
}

// AllTopics matches everything under the root prefix.
//
// Pattern: schoolhub/#
func (Topics) AllTopics() string {
	return TopicPrefixRoot + "/#"
}

// EventType extracts {type} from a schoolhub/core/event/{type} topic.
func EventType(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixCore+"/event/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
