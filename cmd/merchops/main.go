package main

import (
	"os"

	"github.com/wonny/merchops/backend/cmd/merchops/commands"
)

// main is the entry point for the MerchOps forecast CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/merchops [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
