// ABOUTME: Help display for the prospect CLI with grouped commands, flags, and examples.
// ABOUTME: Provides printHelp for usage output and envStatus for API key detection.
package main

import (
	"fmt"
	"io"
	"os"
)

// printHelp writes a formatted help message to w: usage patterns, commands,
// flags, examples, and environment status.
func printHelp(w io.Writer, ver string) {
	fmt.Fprintf(w, "prospect %s - resumable B2B company research pipeline\n", ver)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  prospect analyze <query>     Research a company (query: \"Acme Corp\" or \"Acme Corp Roles: CTO, VP Sales\")")
	fmt.Fprintln(w, "  prospect resume <id|N>       Resume a paused or failed run (N = Nth most recent resumable)")
	fmt.Fprintln(w, "  prospect history             List past runs")
	fmt.Fprintln(w, "  prospect forget <entity>     Delete remembered facts for an entity")
	fmt.Fprintln(w, "  prospect export <id> [file]  Write a run report (Markdown, or HTML for .html files)")
	fmt.Fprintln(w, "  prospect serve               Start the HTTP API server")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -data-dir <dir>   Persistent state directory (default: $XDG_DATA_HOME/prospect)")
	fmt.Fprintln(w, "  -tui              Run analyze/resume with the interactive terminal UI")
	fmt.Fprintln(w, "  -model <name>     LLM model override")
	fmt.Fprintln(w, "  -budget <chars>   Context budget per stage (default: 8000)")
	fmt.Fprintln(w, "  -addr <addr>      Listen address for serve (default: 127.0.0.1:2390)")
	fmt.Fprintln(w, "  -verbose          Print engine events to stderr")
	fmt.Fprintln(w, "  -version          Print version and exit")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  prospect analyze \"Acme Robotics\"")
	fmt.Fprintln(w, "  prospect analyze \"Acme Robotics Roles: CTO, Head of Procurement\" -tui")
	fmt.Fprintln(w, "  prospect resume 1")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  OPENAI_API_KEY    %s (required for analyze/resume/serve)\n", envStatus("OPENAI_API_KEY"))
	fmt.Fprintf(w, "  SERPAPI_API_KEY   %s (web + people search)\n", envStatus("SERPAPI_API_KEY"))
	fmt.Fprintf(w, "  APOLLO_API_KEY    %s (contact enrichment)\n", envStatus("APOLLO_API_KEY"))
}

// envStatus reports whether an environment variable is set, without
// revealing its value.
func envStatus(key string) string {
	if os.Getenv(key) != "" {
		return "set"
	}
	return "not set"
}
