package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	"github.com/wyattjoh/next-dev-utils/internal/manifest"
	"github.com/wyattjoh/next-dev-utils/internal/multitarget"
	"github.com/wyattjoh/next-dev-utils/internal/pack"
)

// Replaced in tests.
var copyToClipboard = clipboard.WriteAll

type urlOutput struct {
	URL string `json:"url"`
}

// emitURL prints url, as JSON when asJSON is set. Otherwise a real URL is
// also copied to the clipboard when possible.
func emitURL(w io.Writer, url string, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return enc.Encode(urlOutput{URL: url})
	}

	fmt.Fprintln(w, url)
	if url == pack.DryRunURL {
		return nil
	}
	if err := copyToClipboard(url); err != nil {
		logr().Debugf("Clipboard unavailable: %v", err)
		return nil
	}
	logr().Info("Copied URL to clipboard")
	return nil
}

// printTargetSummary lists each native target and the aggregate counts.
func printTargetSummary(w io.Writer, res *multitarget.Result) {
	if res == nil {
		return
	}
	ok := color.New(color.FgGreen)
	failed := color.New(color.FgRed)
	dry := color.New(color.FgYellow)

	for _, tr := range res.Successful {
		ok.Fprintf(w, "  ✓ %s", tr.Target.Platform)
		fmt.Fprintf(w, " %s\n", tr.URL)
	}
	for _, tr := range res.DryRun {
		dry.Fprintf(w, "  - %s", tr.Target.Platform)
		fmt.Fprintln(w, " (dry run)")
	}
	for _, tr := range res.Failed {
		failed.Fprintf(w, "  ✗ %s", tr.Target.Platform)
		fmt.Fprintf(w, " %v\n", tr.Err)
	}

	summary := color.New(color.Bold)
	if len(res.Failed) > 0 {
		summary.Add(color.FgYellow)
	}
	summary.Fprintln(w, res.Summary())
}

// writeManifest writes the artifact manifest when path is set.
func writeManifest(path string, mode pack.Mode, main *pack.Result, targets *multitarget.Result) error {
	if path == "" {
		return nil
	}
	return manifest.WriteToFile(manifest.New(runID, mode, main, targets), path)
}
