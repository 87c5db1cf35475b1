// Outpost is a clinic edge node for offline-capable clinical decision
// assurance.
//
// It evaluates point-of-care actions against a locally cached rule set
// and answers with a traffic-light verdict, online or offline:
//   - Sub-10ms local decision engine (RED / YELLOW / GREEN)
//   - Versioned rule distribution with checksum verification
//   - Durable store-and-forward delivery of assurance events
//   - Connectivity monitoring with operator-facing urgency levels
//
// Usage:
//
//	# Start the edge node with default configuration
//	outpost run
//
//	# Start with a custom configuration file
//	outpost run --config /etc/outpost/config.yaml
//
//	# Show node sync status
//	outpost status
//
//	# Force a full rule resync
//	outpost reload
//
//	# Validate a configuration file
//	outpost validate --config /etc/outpost/config.yaml
package main

func main() {
	Execute()
}
