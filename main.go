// Copyright © 2018 The ELPS authors

package main

import "github.com/neo-project/neo-debugger-sub000/cmd"

func main() {
	cmd.Execute()
}
