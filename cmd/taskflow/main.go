package main

import "example.com/taskflow/cmd/taskflow/root"

func main() {
	root.Execute()
}
