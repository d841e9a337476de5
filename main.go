package main

import "github.com/packscan/packscan/cmd"

func main() {
	cmd.Execute()
}
