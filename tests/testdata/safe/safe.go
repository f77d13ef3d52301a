package main

import "fmt"

func reach_error() {}

func unused() {
	reach_error()
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

func main() {
	fmt.Println(sum([]int{1, 2, 3}))
	fmt.Println(sum(nil))
}
