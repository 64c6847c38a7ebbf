// Command bridge runs the chat-to-agent bridge CLI.
package main

import "github.com/nextlevelbuilder/chatbridge/cmd"

func main() {
	cmd.Execute()
}
