package main

import "hotpool/internal/cli"

func main() {
	cli.Execute()
}
