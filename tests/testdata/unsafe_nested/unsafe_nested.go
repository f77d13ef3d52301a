package main

import "os"

func reach_error() {}

func validate(n int) {
	if n < 0 {
		reach_error() // want "reach_error"
	}
}

func parse(args []string) int {
	n := len(args) - 2
	validate(n)
	return n
}

func main() {
	parse(os.Args)
}
