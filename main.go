package main

import "hfcore/cmd"

func main() {
	cmd.Execute()
}
