package main

import "github.com/BatmanBruc/bat-bot-freepik/internal/cli"

func main() {
	cli.Execute()
}
