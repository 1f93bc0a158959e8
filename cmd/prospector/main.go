// Package main is the prospector CLI.
//
// Prospector searches for keywords, filters the sites found by size and
// authority, enriches the survivors with link and contact data and appends
// them to a results workbook.
//
// Usage:
//
//	prospector run --keywords keywords.txt
//	prospector cache key serper/site:example.com
//
// See --help for all available options.
package main

func main() {
	Execute()
}
