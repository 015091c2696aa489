package main

import "example.com/keeptend/cmd"

func main() {
	cmd.Execute()
}
