package bus

import "fmt"

// Topic naming conventions shared by IPCManager and EventBus subscribers.

// TopicAgent is the channel a given agent's inbox is published on.
func TopicAgent(agentID string) string {
	return fmt.Sprintf("agent.%s", agentID)
}

// TopicTag is the channel a tagged fan-out batch is published on.
func TopicTag(tag string) string {
	return fmt.Sprintf("tag.%s", tag)
}

// TopicBroadcast is the channel the synthetic broadcast envelope is
// published on, distinct from TopicTag(ReservedBroadcastTag).
const TopicBroadcast = "broadcast"

// TopicEventsAgent scopes lifecycle events to one agent.
func TopicEventsAgent(agentID string) string {
	return fmt.Sprintf("events.agent.%s", agentID)
}

// TopicEventsTask scopes lifecycle events to task/workflow execution.
const TopicEventsTask = "events.task"

// TopicEventsAll matches every lifecycle event channel.
const TopicEventsAll = "events.>"
