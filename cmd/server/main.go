package main

import "github.com/vovakirdan/campuschat/cmd/server/cmd"

func main() {
	cmd.Execute()
}
