package main

import (
	"log"
	"os"

	"github.com/taskmaster/tasksync/cmd/tasksync/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
