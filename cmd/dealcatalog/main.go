package main

import (
	"context"

	"dealcatalog/cmd/dealcatalog/commands"

	_ "time/tzdata"
)

func main() {
	commands.ExecuteContext(context.Background())
}
