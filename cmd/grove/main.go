// Package main provides the grove CLI entry point.
package main

func main() {
	Execute()
}
