package main

import "github.com/form3tech-oss/pactkit/internal/app/cli"

func main() {
	cli.Execute()
}
