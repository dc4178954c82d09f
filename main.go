package main

import "github.com/centosci/kaijs-bridge/cmd"

func main() {
	cmd.Execute()
}
