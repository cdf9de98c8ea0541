package main

import (
	"github.com/mchmarny/riskcascade/pkg/cli"
)

func main() {
	cli.Execute()
}
