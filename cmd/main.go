// matchd is the candidate–job matching service.
//
//	matchd serve    HTTP API, chat, gRPC health, outbox drainer and scheduler
//	matchd worker   background task consumers
//	matchd version
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
