package main

import (
	"github.com/pixelhotel/messenger/cmd"
)

func main() {
	cmd.Execute()
}
