// Command sentinelcored runs the SentinelCore reactor as a standalone
// binary.
package main

import "github.com/sentinelcore/sentinelcore/cmd/sentinelcored/cmd"

func main() {
	cmd.Execute()
}
