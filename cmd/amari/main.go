// Command amari manages an ingredient taxonomy and resolves cocktail
// recipes against bar inventories.
package main

import "amari/internal/cli"

func main() {
	cli.Execute()
}
