package main

import "github.com/codeheim/taskpulse/services/worker/cli"

func main() {
	cli.Execute()
}
