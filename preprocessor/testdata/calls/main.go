package main

func reach_error() {}

func check(x int) {
	if x > 10 {
		reach_error()
	}
}

func helper() int { return 1 }

func main() {
	x := helper()
	check(x)
	check(x + 1)
	func() {
		panic("unreachable in practice")
	}()
}
