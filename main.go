package main

import "github.com/derickschaefer/opendosm/cmd"

func main() {
	cmd.Execute()
}
