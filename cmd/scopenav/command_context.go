package main

import (
	"sync"

	"github.com/spf13/cobra"
)

// commandExecutionContext describes the command being run, for the error
// reporting that happens after cobra has returned.
type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	commandContextMu sync.Mutex
	commandContext   commandExecutionContext
)

func setCommandExecutionContext(ctx commandExecutionContext) {
	commandContextMu.Lock()
	defer commandContextMu.Unlock()
	commandContext = ctx
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{})
}

func currentCommandExecutionContext() commandExecutionContext {
	commandContextMu.Lock()
	defer commandContextMu.Unlock()
	return commandContext
}

// structuredLogCommands are the long-running and database commands, whose
// output goes to log collectors rather than to a person.
var structuredLogCommands = map[string]bool{
	"serve":   true,
	"migrate": true,
	"seed":    true,
}

func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if structuredLogCommands[c.Name()] {
			return true
		}
	}
	return false
}
