package main

import (
	"github.com/ColonelBlimp/stringtuner/cmd"
	"github.com/ColonelBlimp/stringtuner/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
