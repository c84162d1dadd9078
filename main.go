// The main package for the exhibitions executable.
package main

import "github.com/JakeFAU/exhibitions-crawler/cmd"

func main() {
	cmd.Execute()
}
