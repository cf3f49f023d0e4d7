package broker

import "fmt"

const keyPrefix = "eventorch"

func waitingKey(queue string) string    { return fmt.Sprintf("%s:%s:waiting", keyPrefix, queue) }
func delayedKey(queue string) string    { return fmt.Sprintf("%s:%s:delayed", keyPrefix, queue) }
func processingKey(queue string) string { return fmt.Sprintf("%s:%s:processing", keyPrefix, queue) }
func completedKey(queue string) string  { return fmt.Sprintf("%s:%s:completed", keyPrefix, queue) }
func failedKey(queue string) string     { return fmt.Sprintf("%s:%s:failed", keyPrefix, queue) }
func repeatableKey(queue string) string { return fmt.Sprintf("%s:%s:repeatable", keyPrefix, queue) }
func jobKey(queue, jobID string) string { return fmt.Sprintf("%s:%s:job:%s", keyPrefix, queue, jobID) }

// historyLimit bounds completed/failed retention per queue, per §4.2's "at
// least 100 of each per queue".
const historyLimit = 100
