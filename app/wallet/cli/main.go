package main

import "github.com/tessercoin/tesser/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
