// Package main 是应用程序的入口点。
package main

func main() {
	Execute()
}
