package main

import "github.com/tristendillon/pytrace/cmd"

func main() {
	cmd.Execute()
}
