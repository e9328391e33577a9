package main

import "github.com/wormhole-demo/attestor/cmd"

func main() {
	cmd.Execute()
}
