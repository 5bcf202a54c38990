package main

import "github.com/iksnae/bob-the-lawyer/cmd"

func main() {
	cmd.Execute()
}
