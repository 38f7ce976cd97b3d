package main

import "github.com/tokfetch/tokfetch/cmd"

func main() {
	cmd.Execute()
}
