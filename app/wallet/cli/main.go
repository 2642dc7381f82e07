// This program provides a simple wallet for signing and submitting
// transactions to a node.
package main

import "github.com/ardanlabs/pohchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
