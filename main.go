package main

import "github.com/leon6002/keybox-sub000/cmd"

func main() {
	cmd.Execute()
}
