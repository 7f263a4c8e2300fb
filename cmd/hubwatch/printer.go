package main

import (
	"encoding/json"
	"fleet-hub/domain"
	"fleet-hub/domain/event"
	"fleet-hub/infrastructure/ws"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type printer struct {
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

// Print renders snapshots as tables and every other event as one line.
func (p *printer) Print(frame ws.ServerFrame) error {
	at := frame.Timestamp.Local().Format(time.TimeOnly)
	switch frame.Type {
	case event.SystemStatusUpdateName:
		var status domain.StatusSnapshot
		if err := json.Unmarshal(frame.Payload, &status); err != nil {
			return err
		}
		p.line(at, color.Cyan, frame.Type, healthLabel(status.IsHealthy))
		p.statusTable(status)
	case event.AgentsUpdateName:
		var agents []domain.AgentSummary
		if err := json.Unmarshal(frame.Payload, &agents); err != nil {
			return err
		}
		p.line(at, color.Cyan, frame.Type, fmt.Sprintf("%d agents", len(agents)))
		p.agentTable(agents)
	case event.AgentSpecificUpdateName, event.AgentStatusChangedName:
		var agent domain.AgentSummary
		if err := json.Unmarshal(frame.Payload, &agent); err != nil {
			return err
		}
		p.line(at, color.Magenta, frame.Type, fmt.Sprintf("%s %s is %s", agent.ID, agent.Name, agent.Status))
	case event.ErrorName:
		var msg string
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			return err
		}
		p.line(at, color.Red, frame.Type, msg)
	case event.BroadcastingStoppedName:
		p.line(at, color.Yellow, frame.Type, "server paused broadcasts")
	default:
		p.line(at, color.Green, frame.Type, string(frame.Payload))
	}
	return nil
}

func (p *printer) line(at string, c color.Color, kind, detail string) {
	_, _ = fmt.Fprintf(p.out, "%s %s %s\n", at, c.Sprintf("%-20s", kind), detail)
}

func (p *printer) statusTable(s domain.StatusSnapshot) {
	table := p.table([]string{"CPU %", "Memory %", "Disk %", "Active", "Modules", "Uptime"})
	table.Append([]string{
		strconv.FormatFloat(s.CPUUsage, 'f', 1, 64),
		strconv.FormatFloat(s.MemoryUsage, 'f', 1, 64),
		strconv.FormatFloat(s.DiskUsage, 'f', 1, 64),
		strconv.Itoa(s.ActiveAgents),
		strconv.Itoa(s.TotalModules),
		domain.FormatTimeSpan(s.Uptime),
	})
	table.Render()
}

func (p *printer) agentTable(agents []domain.AgentSummary) {
	table := p.table([]string{"ID", "Name", "Type", "Status", "CPU", "Memory"})
	for _, a := range agents {
		cpu, mem := "-", "-"
		if a.ResourceUsage != nil {
			cpu = strconv.FormatFloat(a.ResourceUsage.CPU, 'f', 1, 64)
			mem = strconv.FormatFloat(a.ResourceUsage.Memory, 'f', 1, 64)
		}
		table.Append([]string{a.ID, a.Name, a.Type, a.Status, cpu, mem})
	}
	table.Render()
}

func (p *printer) table(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(p.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func healthLabel(healthy bool) string {
	if healthy {
		return color.Green.Sprint("healthy")
	}
	return color.Red.Sprint("unhealthy")
}
