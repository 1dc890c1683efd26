package main

import "github.com/hazavi/yumekai-sub000/cli/cmd"

func main() {
	cmd.Execute()
}
