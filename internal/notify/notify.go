// Package notify broadcasts progress, completion, and failure events to
// connected clients. Delivery is best-effort: publish failures are logged and
// never fail the operation that produced the event.
package notify

import "fmt"

// Event is a loosely structured broadcast payload. Every event carries a
// "type" entry naming what happened.
type Event map[string]interface{}

// Sink is a fire-and-forget publisher keyed by topic.
type Sink interface {
	Publish(topic string, event Event)
}

// Topic constructors. A topic is one owner plus one concern.

// TransactionsTopic carries categorization results and bulk transaction
// mutations.
func TransactionsTopic(userID string) string {
	return fmt.Sprintf("user_%s_transactions", userID)
}

// AnomaliesTopic carries anomaly detection and resolution events.
func AnomaliesTopic(userID string) string {
	return fmt.Sprintf("user_%s_anomalies", userID)
}

// ImportsTopic carries import pipeline progress and the follow-up bulk job
// events.
func ImportsTopic(userID string) string {
	return fmt.Sprintf("user_%s_imports", userID)
}
