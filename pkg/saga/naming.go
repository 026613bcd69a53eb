package saga

// RequestTopic is the topic a participant listens on for a base task name.
func RequestTopic(baseTaskName string) string {
	return baseTaskName
}

// SuccessTopic is the topic an async step's participant replies to on success.
func SuccessTopic(baseTaskName string) string {
	return baseTaskName + ".response.success"
}

// FailureTopic is the topic an async step's participant replies to on failure.
func FailureTopic(baseTaskName string) string {
	return baseTaskName + ".response.failure"
}
