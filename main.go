package main

import "github.com/FrostKing4567/Slavie/cmd"

func main() {
	cmd.Execute()
}
