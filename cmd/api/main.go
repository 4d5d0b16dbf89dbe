package main

import "github.com/codeheim/taskpulse/services/api/cli"

func main() {
	cli.Execute()
}
