package main

import (
	"xorkevin.dev/pquery/cmd"
)

func main() {
	cmd.New().Execute()
}
