package main

import "github.com/vietddude/ivawatch/internal/cli"

func main() {
	cli.Execute()
}
