package mqtt

import "fmt"

// Topic prefixes.
const (
	// TopicPrefix is the root of every topic the service publishes.
	TopicPrefix = "envio"

	// TopicPrefixItems is the base for item mutation events.
	TopicPrefixItems = "envio/items"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "envio/system"
)

// Topics provides builders for MQTT topics.
//
//	topic := mqtt.Topics{}.ItemEvent(7, "updated")
//	// Returns: "envio/items/7/updated"
type Topics struct{}

// ItemEvent returns the topic for a mutation of one item.
//
// Example: envio/items/7/created
func (Topics) ItemEvent(id int64, action string) string {
	return fmt.Sprintf("%s/%d/%s", TopicPrefixItems, id, action)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: envio/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllItemEvents returns a pattern matching every item event, for consumers.
//
// Pattern: envio/items/+/+
func (Topics) AllItemEvents() string {
	return TopicPrefixItems + "/+/+"
}

// ItemEvents returns a pattern matching every event of one item.
//
// Pattern: envio/items/7/+
func (Topics) ItemEvents(id int64) string {
	return fmt.Sprintf("%s/%d/+", TopicPrefixItems, id)
}
