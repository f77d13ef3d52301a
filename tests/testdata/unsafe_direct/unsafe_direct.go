package main

import "os"

func reach_error() {}

func main() {
	if len(os.Args) > 3 {
		reach_error() // want "reach_error"
	}
}
