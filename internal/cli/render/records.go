package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// RecordsRenderer renders record lists grouped by network
type RecordsRenderer struct {
	out io.Writer
}

// NewRecordsRenderer creates a new records renderer
func NewRecordsRenderer(out io.Writer) *RecordsRenderer {
	return &RecordsRenderer{out: out}
}

// RenderList renders one table per network, in the order records arrive
func (r *RecordsRenderer) RenderList(result *usecase.ListContractsResult) error {
	if len(result.Contracts) == 0 {
		fmt.Fprintln(r.out, "No contracts found")
		return nil
	}

	var chains []uint64
	groups := make(map[uint64][]*models.ContractRecord)
	for _, rec := range result.Contracts {
		if _, ok := groups[rec.ChainID]; !ok {
			chains = append(chains, rec.ChainID)
		}
		groups[rec.ChainID] = append(groups[rec.ChainID], rec)
	}

	for i, chainID := range chains {
		if i > 0 {
			fmt.Fprintln(r.out)
		}
		records := groups[chainID]
		fmt.Fprintln(r.out, chainHeader.Sprintf(" %s ", NetworkLabel(records[0].NetworkName, chainID)))
		fmt.Fprintln(r.out, recordTable(records))
	}

	fmt.Fprintf(r.out, "\nTotal: %d contracts (%d proxies) on %d networks\n",
		result.Summary.Total, result.Summary.Proxies, len(chains))
	return nil
}

func recordTable(records []*models.ContractRecord) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.Style().Options.SeparateRows = false
	t.AppendHeader(table.Row{"Contract", "Address", "Proxy", "Updated"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignLeft},
		{Number: 4, Align: text.AlignRight},
	})

	for _, rec := range records {
		proxy := ""
		if rec.IsProxy() {
			proxy = proxyStyle.Sprint(Checksum(rec.ProxyAddress))
		}
		t.AppendRow(table.Row{
			nameStyle.Sprint(rec.ContractName),
			Checksum(rec.Address),
			proxy,
			timestampStyle.Sprint(FormatTimestamp(rec.Timestamp)),
		})
	}
	return t.Render()
}
