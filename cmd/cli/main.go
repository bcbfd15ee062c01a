package main

import "github.com/sacha-rebbouh/optim-financials/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
