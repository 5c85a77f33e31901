package main

import "github.com/jmcleod/pantrypal/cmd/pantrypal/cmd"

func main() {
	cmd.Execute()
}
