package main

import "github.com/ValentinKolb/dCoord/cmd"

func main() {
	cmd.Execute()
}
