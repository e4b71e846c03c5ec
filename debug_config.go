package main

import (
	"fmt"
	"log"

	"github.com/fairyhunter13/code-eval-worker/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("ExecLanguage: '%s'\n", cfg.ExecLanguage)
	fmt.Printf("SandboxRoot: '%s'\n", cfg.SandboxRoot)
	fmt.Printf("OrchestratorAddress: '%s'\n", cfg.OrchestratorAddress)
	fmt.Printf("AzureStorageContainer: '%s'\n", cfg.AzureStorageContainer)
	fmt.Printf("APIKey set: %v\n", cfg.APIKey != "")
	fmt.Printf("Validate(): %v\n", cfg.Validate())
}
