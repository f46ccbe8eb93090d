package main

import "github.com/averres/proxyfan/cmd"

func main() {
	cmd.Execute()
}
