package main

import "github.com/ChristopherHoole/gads-data-layer-sub001/internal/cli"

func main() {
	cli.Execute()
}
