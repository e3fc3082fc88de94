package main

import "github.com/ngld/devtasks/cmd"

func main() {
	cmd.Execute()
}
