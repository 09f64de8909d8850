package main

import (
	"github.com/truenas-collector/cmd/agent"
)

func main() {
	agent.Execute()
}
