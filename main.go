package main

import "github.com/AzielCF/az-wacloud/cmd"

func main() {
	cmd.Execute()
}
