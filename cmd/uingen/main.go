// Package main provides a CLI tool for minting sample UINs, useful for
// seeding demo data and eyeballing the number format. Numbers minted here
// are NOT collision-checked against any registry.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"civid/internal/issuance"
	"civid/pkg/domain"
)

func main() {
	prefix := flag.String("prefix", "CID", "UIN prefix")
	count := flag.Int("n", 1, "Number of UINs to mint")
	flag.Parse()

	if *count < 1 || *count > 1000 {
		fmt.Fprintln(os.Stderr, "n must be between 1 and 1000")
		os.Exit(1)
	}

	// Offline tool, nothing to collide with.
	noCollisions := func(_ context.Context, _ domain.UIN) (bool, error) { return false, nil }
	gen := issuance.NewGenerator(*prefix, noCollisions)

	for range *count {
		uin, err := gen.Issue(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error minting UIN: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(uin)
	}
}
