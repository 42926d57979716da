// The main package for the seo-crawler executable.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/JakeFAU/seo-crawler/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
