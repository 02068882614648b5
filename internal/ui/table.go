package ui

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

// FileTableItem is one row of the pre-send file listing.
type FileTableItem struct {
	Index int
	Name  string
	Size  int64
	Type  string
}

// RenderFileTable prints the files queued for sending.
func RenderFileTable(items []FileTableItem) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Name", "Size", "Type"})
	for _, item := range items {
		t.AppendRow(table.Row{
			item.Index,
			Truncate(item.Name, 50),
			FormatSize(item.Size),
			Truncate(item.Type, 20),
		})
	}
	t.Render()
}

// TransferSummary is the post-transfer stats block.
type TransferSummary struct {
	Status    string
	Files     int
	TotalSize string
	Duration  string
	Speed     string
}

// RenderTransferSummary prints the final stats table.
func RenderTransferSummary(summary TransferSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Status", summary.Status},
		{"Files", summary.Files},
		{"Total Size", summary.TotalSize},
		{"Duration", summary.Duration},
		{"Avg Speed", summary.Speed},
	})
	t.Render()
}
