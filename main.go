// Command review-scraper extracts structured reviews from web pages.
package main

import (
	"context"
	"os"

	"github.com/JakeFAU/review-scraper/cmd"
)

func main() {
	os.Exit(cmd.Execute(context.Background()))
}
