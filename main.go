package main

import (
	"context"
	"os"

	"supercouch/cmd/supercouch"
)

func main() {
	os.Exit(supercouch.Execute(context.Background()))
}
