package main

import (
	"os"

	"fintrack/billrecon/cmd/categorize"
	"fintrack/billrecon/cmd/process"
	"fintrack/billrecon/cmd/root"
	"fintrack/billrecon/cmd/serve"
)

func init() {
	root.Cmd.AddCommand(process.Cmd)
	root.Cmd.AddCommand(serve.Cmd)
	root.Cmd.AddCommand(categorize.Cmd)
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
