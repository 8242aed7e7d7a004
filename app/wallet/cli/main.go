package main

import "github.com/equiforge/equiforge/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
