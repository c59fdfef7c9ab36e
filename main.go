package main

import "github.com/composablefi/grandpa-prover/cmd"

func main() {
	cmd.Execute()
}
