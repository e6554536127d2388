package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"trait-consensus/internal/domain"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// printReport escribe el reporte en formato tabla para la terminal.
func printReport(w io.Writer, report domain.ConsensusReport) {
	fmt.Fprintf(w, "%s %s\n", bold("Run"), report.RunID)
	for _, t := range domain.BigFive {
		agg, ok := report.TraitAggregates[t]
		if !ok || !agg.Assessed {
			fmt.Fprintf(w, "  %-18s %s\n", t, red("sin evaluar"))
			continue
		}
		mark := green("ok")
		switch {
		case agg.Degraded:
			mark = red("degradado")
		case agg.Escalated:
			mark = yellow("escalado")
		}
		fmt.Fprintf(w, "  %-18s %.2f  (%5.1f/100)  conf %.2f  n=%d  %s\n",
			t, agg.Mean, agg.Scaled(100), agg.Confidence, agg.SampleCount, mark)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", bold("MBTI"), cyan(report.MBTICode))
	fmt.Fprintf(w, "%s %.2f\n", bold("Confianza"), report.OverallConfidence)
	fmt.Fprintf(w, "%s %s\n", bold("Evaluadores"), strings.Join(report.EvaluatorsUsed, ", "))
	if len(report.DisputedSegmentIDs) > 0 {
		fmt.Fprintf(w, "%s %s\n", bold("Disputados"), yellow(strings.Join(report.DisputedSegmentIDs, ", ")))
	}
}
