package main

import "github.com/atticfile/attic/cmd/attic/cmd"

func main() {
	cmd.Execute()
}
