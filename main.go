package main

import "github.com/alertrelay/alertrelay/cmd"

func main() {
	cmd.Execute()
}
