package main

import "github.com/frahmantamala/assistant-guard/cmd"

func main() {
	cmd.Execute()
}
