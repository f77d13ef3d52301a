package main

import "os"

func reach_error() {}

func record(msg string) int {
	return len(msg)
}

func check(n int) {
	record("check")
	if n > 100 {
		reach_error() // want "reach_error"
	}
}

func main() {
	n := record("start")
	n += record("args")
	for _, arg := range os.Args {
		n += record(arg)
	}
	check(n)
}
