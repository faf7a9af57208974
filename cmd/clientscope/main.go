package main

import "github.com/KaramelBytes/clientscope-cli/cmd"

func main() {
	cmd.Execute()
}
