// Command sessiond runs the same-origin session server: the BFF token
// routes, the route guard in front of the pages, the push hub and a
// Prometheus endpoint. With --mock it also hosts an in-process authority so
// the whole login/refresh/logout cycle can be exercised locally.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
