package main

import "github.com/atticfile/attic/cmd/atticd/cmd"

func main() {
	cmd.Execute()
}
