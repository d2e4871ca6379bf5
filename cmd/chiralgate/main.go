package main

import "github.com/jmcleod/chiralgate/cmd/chiralgate/cmd"

func main() {
	cmd.Execute()
}
