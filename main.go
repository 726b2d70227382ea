package main

import (
	"github.com/zapdesk/zapdesk/cmd"
)

func main() {
	cmd.Execute()
}
