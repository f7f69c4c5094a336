package main

import "github.com/ocervell/flash/cmd/flash"

func main() {
	flash.Main()
}
