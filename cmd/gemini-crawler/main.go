// Package main provides the entry point for the gemini-crawler CLI.
//
// gemini-crawler walks Geminispace from one or more seed URLs, building
// a link graph of the capsules it visits.
//
// Usage:
//
//	gemini-crawler crawl gemini://geminiprotocol.net/
//	gemini-crawler export --dot
//
// See --help for all available options.
package main

// main is the entry point for gemini-crawler.
func main() {
	Execute()
}
