package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"atelier/internal/credits"
	"atelier/internal/jobs"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render() + "\n"
}

func renderJobTable(list []jobs.Job, selectedID string) string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		marker := ""
		if job.ID == selectedID {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			shortID(job.ID),
			titleLabel(string(job.Kind)),
			titleLabel(string(job.Tier)),
			statusLabel(job),
			strconv.FormatInt(job.CostCredits, 10),
			strconv.Itoa(job.Attempt),
			shortID(job.ParentJobID),
			truncate(job.InputText, 40),
			formatTime(job.CreatedAt),
		})
	}
	return renderTable(
		[]string{"", "ID", "Kind", "Tier", "Status", "Credits", "Try", "Parent", "Directive", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	)
}

func renderLedgerTable(entries []credits.Entry) string {
	rows := make([][]string, 0, len(entries))
	var running int64
	for _, e := range entries {
		running += e.Delta
		rows = append(rows, []string{
			formatTime(e.At),
			titleLabel(string(e.Reason)),
			fmt.Sprintf("%+d", e.Delta),
			strconv.FormatInt(running, 10),
			shortID(e.JobID),
			e.Note,
		})
	}
	return renderTable(
		[]string{"When", "Reason", "Delta", "Balance", "Job", "Note"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func statusLabel(job jobs.Job) string {
	label := titleLabel(string(job.Status))
	if job.ErrorKind != jobs.ErrorKindNone {
		label += " (" + string(job.ErrorKind) + ")"
	}
	return label
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
