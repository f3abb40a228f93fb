package main

import "github.com/mabhi256/paramspec/cmd"

func main() {
	cmd.Execute()
}
