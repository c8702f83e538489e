package main

import (
	"os"

	"github.com/oculairmedia/graphiti-sub006/cmd/resolver"
)

func main() {
	if err := resolver.Execute(); err != nil {
		os.Exit(1)
	}
}
