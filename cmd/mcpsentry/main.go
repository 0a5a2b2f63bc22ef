// Command mcpsentry runs the security-gateway MCP server over stdio.
package main

import "mcpsentry/cmd/mcpsentry/cmd"

func main() {
	cmd.Execute()
}
