// Package report renders the human-facing run header and summary. Output is
// meant for stderr; stdout carries only the insert lines.
package report

import (
	"fmt"
	"io"
	"strings"

	"prompt-sync/internal/batch"
)

const sepWidth = 50

// Info describes a run for the banner.
type Info struct {
	Version  string
	Env      string
	Backend  string
	Database string
	Root     string
	Encoding string
	Dedup    batch.DedupMode
}

// Banner prints the run header.
func Banner(w io.Writer, info Info) {
	sep := sepStyle.Render(strings.Repeat("─", sepWidth))

	var b strings.Builder
	b.WriteString(sep + "\n")
	b.WriteString("  " + titleStyle.Render(fmt.Sprintf("prompt-sync %s", info.Version)) + "\n")
	b.WriteString(sep + "\n")
	line(&b, "Environment:", info.Env)
	line(&b, "Store:", fmt.Sprintf("%s (database: %s)", info.Backend, info.Database))
	line(&b, "Prompts:", info.Root)
	line(&b, "Tokenizer:", info.Encoding)
	line(&b, "Dedup:", string(info.Dedup))
	b.WriteString(sep + "\n")

	io.WriteString(w, b.String())
}

// Summary prints per-namespace counts and the totals. err, when non-nil,
// is shown as the reason the run stopped early.
func Summary(w io.Writer, sum batch.Summary, err error) {
	sep := sepStyle.Render(strings.Repeat("─", sepWidth))

	var b strings.Builder
	b.WriteString(sep + "\n")
	if len(sum.Namespaces) == 0 {
		b.WriteString("  " + dimStyle.Render("No namespaces found.") + "\n")
	}
	for _, ns := range sum.Namespaces {
		b.WriteString(fmt.Sprintf("  %s  %s  %s  %s\n",
			valueStyle.Render(fmt.Sprintf("%-20s", ns.Namespace)),
			countStyle(ns.Inserted).Render(fmt.Sprintf("inserted %4d", ns.Inserted)),
			dimStyle.Render(fmt.Sprintf("skipped %4d", ns.Skipped)),
			dimStyle.Render(fmt.Sprintf("stored before %4d", ns.Existing)),
		))
	}
	b.WriteString(sep + "\n")
	line(&b, "Files:", fmt.Sprintf("%d", sum.Files()))
	b.WriteString("  " + labelStyle.Render(fmt.Sprintf("%-13s", "Inserted:")) + " " +
		countStyle(sum.Inserted()).Render(fmt.Sprintf("%d", sum.Inserted())) + "\n")
	line(&b, "Skipped:", fmt.Sprintf("%d", sum.Skipped()))
	if err != nil {
		b.WriteString("  " + errorStyle.Render("Stopped: "+err.Error()) + "\n")
	}
	b.WriteString(sep + "\n")

	io.WriteString(w, b.String())
}

// Purged prints the outcome of a purge.
func Purged(w io.Writer, target string, n int64) {
	fmt.Fprintf(w, "  %s %s\n",
		labelStyle.Render("Deleted from "+target+":"),
		valueStyle.Render(fmt.Sprintf("%d", n)),
	)
}

func line(b *strings.Builder, label, value string) {
	b.WriteString("  " + labelStyle.Render(fmt.Sprintf("%-13s", label)) + " " + valueStyle.Render(value) + "\n")
}
