// cmd/bkar/main.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package main

func main() {
	Execute()
}
