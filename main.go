// The main package for the listingcrawler executable.
package main

import "github.com/JakeFAU/vehicle-listing-crawler/cmd"

func main() {
	cmd.Execute()
}
