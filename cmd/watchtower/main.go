package main

import (
	"github.com/FuelLabs/fuel-canary-watchtower/internal/cli"
)

func main() {
	cli.Execute()
}
