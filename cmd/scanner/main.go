package main

import "github.com/codeheim/taskpulse/services/scanner/cli"

func main() {
	cli.Execute()
}
