// Command chatdocs is the entry point for the chat-with-your-documents
// service. It provides a CLI interface (via Cobra) and the HTTP server that
// fronts the chatbot, conversation, and metering APIs.
package main

import (
	"fmt"
	"os"

	"github.com/chatdocs/chatdocs/cmd/chatdocs/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
