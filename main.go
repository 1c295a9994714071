package main

import "github.com/msgdeck/msgdeck/cmd"

// set by ldflags
var (
	gitCommit  = "none"
	gitVersion = "dev"
)

func main() {
	cmd.Execute(gitCommit, gitVersion)
}
