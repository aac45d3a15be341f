package main

import (
	"github.com/mchmarny/claimq/pkg/cli"
)

func main() {
	cli.Execute()
}
