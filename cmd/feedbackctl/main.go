package main

import "github.com/zombar/feedbackpulse/internal/cli"

func main() {
	cli.Run()
}
