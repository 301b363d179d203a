// Gate fronts persona-driven content generation with a per-user
// sliding-window admission controller.
//
// Usage:
//
//	# Start the server
//	gate run --config config.yaml
//
//	# Check a configuration file
//	gate validate --config config.yaml
//
//	# Remove idle admission windows once and exit
//	gate sweep --config config.yaml
//
//	# Show version information
//	gate version
package main

func main() {
	Execute()
}
