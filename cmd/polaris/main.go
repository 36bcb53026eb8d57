// Polaris is a multi-tenant routing gateway for LLM traffic.
//
// It exposes an OpenAI-compatible API and routes each request for a logical
// model to the best physical provider, with health-aware candidate ranking,
// session affinity, ordered failover, and egress proxy rotation.
//
// Usage:
//
//	# Start the gateway with default configuration
//	polaris run
//
//	# Start with a custom configuration file
//	polaris run --config /path/to/config.yaml
//
//	# Validate configuration without starting
//	polaris validate
//
//	# Show version information
//	polaris version
package main

func main() {
	Execute()
}
