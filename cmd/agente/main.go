package main

import "github.com/Anjos3/agente-seguimiento/internal/cli"

func main() {
	cli.Execute()
}
