// Command expenses syncs a personal transaction list with the cloud and,
// optionally, with a partner.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(rootOptions{}).Execute(); err != nil {
		os.Exit(1)
	}
}
