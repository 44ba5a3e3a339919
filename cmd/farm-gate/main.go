package main

import "github.com/farm-gate/farmgate/cmd/farm-gate/cmd"

func main() {
	cmd.Execute()
}
