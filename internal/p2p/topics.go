package p2p

// Gossip topic names for the consensus protocol
const (
	// TopicAnnouncements carries signed per-round VRF announcements
	TopicAnnouncements = "consensus/announcements"

	// TopicBlocks carries proposed blocks
	TopicBlocks = "consensus/blocks"
)

// Topics returns every topic a consensus node subscribes to
func Topics() []string {
	return []string{TopicAnnouncements, TopicBlocks}
}

// IsValidTopic checks if a topic name is one the node handles
func IsValidTopic(topic string) bool {
	switch topic {
	case TopicAnnouncements, TopicBlocks:
		return true
	default:
		return false
	}
}
