package main

import "github.com/daro-kh/leavegate/cmd"

func main() {
	cmd.Execute()
}
