package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// RecordRenderer renders a single contract record
type RecordRenderer struct {
	out io.Writer
}

// NewRecordRenderer creates a new record renderer
func NewRecordRenderer(out io.Writer) *RecordRenderer {
	return &RecordRenderer{out: out}
}

// RenderRecord renders detailed record information
func (r *RecordRenderer) RenderRecord(rec *models.ContractRecord) error {
	headerStyle.Fprintf(r.out, "Contract: %s\n", rec.ContractName)
	fmt.Fprintln(r.out, strings.Repeat("=", 80))

	r.field("Network", NetworkLabel(rec.NetworkName, rec.ChainID))
	if rec.IsProxy() {
		r.field("Proxy", proxyStyle.Sprint(Checksum(rec.ProxyAddress)))
		r.field("Implementation", Checksum(rec.Address))
	} else {
		r.field("Address", Checksum(rec.Address))
	}
	r.field("Bytecode Hash", rec.FactoryByteCodeHash)
	if rec.ImplementationHash != "" {
		r.field("Implementation Hash", rec.ImplementationHash)
	}
	if len(rec.DeploymentArgs) > 0 {
		args, err := json.Marshal(rec.DeploymentArgs)
		if err != nil {
			return err
		}
		r.field("Args", string(args))
	}
	r.field("Updated", timestampStyle.Sprint(FormatTimestamp(rec.Timestamp)))
	return nil
}

// RenderPlan renders a deployment decision
func (r *RecordRenderer) RenderPlan(name string, plan *usecase.DeploymentPlan) error {
	var action string
	switch plan.Action {
	case usecase.ActionSkip:
		action = okStyle.Sprint(Title(string(plan.Action)))
	case usecase.ActionUpgrade:
		action = proxyStyle.Sprint(Title(string(plan.Action)))
	default:
		action = warnStyle.Sprint(Title(string(plan.Action)))
	}
	fmt.Fprintf(r.out, "%s: %s (%s)\n", nameStyle.Sprint(name), action, plan.Reason)
	if plan.Existing != nil {
		r.field("Current", Checksum(plan.Existing.PublicAddress()))
		r.field("Current Hash", plan.Existing.FactoryByteCodeHash)
	}
	return nil
}

func (r *RecordRenderer) field(label, value string) {
	fmt.Fprintf(r.out, "  %s %s\n", labelStyle.Sprintf("%-20s", label+":"), value)
}
