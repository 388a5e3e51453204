package tools

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/nautobot"
)

// PrefixesTool queries prefixes for a location and renders them in the
// formats the chat assistant understands: raw json rows, an aligned text
// table, dataframe-style summary statistics, or CSV.
type PrefixesTool struct {
	client *nautobot.Client
	logger *logx.Logger
}

// NewPrefixesTool creates the prefix lookup tool.
func NewPrefixesTool(client *nautobot.Client) (*PrefixesTool, error) {
	if client == nil {
		return nil, fmt.Errorf("prefixes tool requires a nautobot client")
	}
	return &PrefixesTool{client: client, logger: logx.NewLogger("tool-prefixes")}, nil
}

// Name returns the tool identifier.
func (t *PrefixesTool) Name() string {
	return ToolGetPrefixesByLocation
}

// Definition returns the get_prefixes_by_location capability descriptor.
func (t *PrefixesTool) Definition() capability.Capability {
	return capability.Capability{
		Name:        ToolGetPrefixesByLocation,
		Description: "Query Nautobot for network prefixes by a location name. Supports multiple output formats.",
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"location_name": {
					Type:        "string",
					Description: "The location name, e.g., 'Branch Office 3'",
				},
				"format": {
					Type:        "string",
					Description: "Desired output format",
					Enum:        []string{"json", "table", "dataframe", "csv"},
				},
			},
			Required: []string{"location_name"},
		},
	}
}

// Exec runs the prefix lookup.
func (t *PrefixesTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	location, ok := stringArg(args, "location_name")
	if !ok {
		return errorResult("location_name is required"), nil
	}
	format := optionalString(args, "format", "json")

	prefixes, err := t.client.GetPrefixesByLocation(ctx, location)
	if err != nil {
		return failureResult(err, "Failed to get prefixes for location '%s': %v", location, err)
	}
	if len(prefixes) == 0 {
		return successResult(fmt.Sprintf("No prefixes found at location '%s'", location), 0, []any{}), nil
	}

	t.logger.Info("📊 Retrieved %d prefixes for %s (format %s)", len(prefixes), location, format)

	result := successResult(
		fmt.Sprintf("Found %d prefixes at location '%s'", len(prefixes), location),
		len(prefixes),
		prefixRows(prefixes),
	)
	switch format {
	case "table":
		result["data"] = renderPrefixTable(prefixes)
	case "dataframe":
		result["analysis"] = analyzePrefixes(prefixes)
	case "csv":
		result["data"] = renderPrefixCSV(prefixes)
		result["filename"] = csvFilename(location)
	default:
		result["summary"] = map[string]any{
			"total_prefixes": len(prefixes),
			"total_hosts":    totalHosts(prefixes),
		}
	}
	return result, nil
}

// ExportPrefixesTool renders a location's prefixes as CSV and reports the
// export metadata. The chat layer owns actually handing the file to users.
type ExportPrefixesTool struct {
	client *nautobot.Client
	logger *logx.Logger
}

// NewExportPrefixesTool creates the CSV export tool.
func NewExportPrefixesTool(client *nautobot.Client) (*ExportPrefixesTool, error) {
	if client == nil {
		return nil, fmt.Errorf("export tool requires a nautobot client")
	}
	return &ExportPrefixesTool{client: client, logger: logx.NewLogger("tool-export")}, nil
}

// Name returns the tool identifier.
func (t *ExportPrefixesTool) Name() string {
	return ToolExportPrefixesToCSV
}

// Definition returns the export_prefixes_to_csv capability descriptor.
func (t *ExportPrefixesTool) Definition() capability.Capability {
	return capability.Capability{
		Name:        ToolExportPrefixesToCSV,
		Description: "Export prefixes for a location to a CSV file and return metadata about the export.",
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"location_name": {Type: "string"},
				"filename": {
					Type:        "string",
					Description: "Optional filename to use",
				},
			},
			Required: []string{"location_name"},
		},
	}
}

// Exec runs the export.
func (t *ExportPrefixesTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	location, ok := stringArg(args, "location_name")
	if !ok {
		return errorResult("location_name is required"), nil
	}
	filename := optionalString(args, "filename", csvFilename(location))

	prefixes, err := t.client.GetPrefixesByLocation(ctx, location)
	if err != nil {
		return failureResult(err, "Failed to export prefixes for location '%s': %v", location, err)
	}
	if len(prefixes) == 0 {
		return successResult(fmt.Sprintf("No prefixes found at location '%s'", location), 0, []any{}), nil
	}

	t.logger.Info("📥 Exported %d prefixes for %s to %s", len(prefixes), location, filename)

	result := successResult(
		fmt.Sprintf("Exported %d prefixes for location '%s' to %s", len(prefixes), location, filename),
		len(prefixes),
		renderPrefixCSV(prefixes),
	)
	result["filename"] = filename
	return result, nil
}

// AnalyzePrefixesTool computes summary statistics over a location's prefixes.
type AnalyzePrefixesTool struct {
	client *nautobot.Client
	logger *logx.Logger
}

// NewAnalyzePrefixesTool creates the prefix analysis tool.
func NewAnalyzePrefixesTool(client *nautobot.Client) (*AnalyzePrefixesTool, error) {
	if client == nil {
		return nil, fmt.Errorf("analyze tool requires a nautobot client")
	}
	return &AnalyzePrefixesTool{client: client, logger: logx.NewLogger("tool-analyze")}, nil
}

// Name returns the tool identifier.
func (t *AnalyzePrefixesTool) Name() string {
	return ToolAnalyzePrefixes
}

// Definition returns the analyze_prefixes_dataframe capability descriptor.
func (t *AnalyzePrefixesTool) Definition() capability.Capability {
	return capability.Capability{
		Name:        ToolAnalyzePrefixes,
		Description: "Perform analysis on prefixes for a location and return summary statistics.",
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"location_name": {Type: "string"},
			},
			Required: []string{"location_name"},
		},
	}
}

// Exec runs the analysis.
func (t *AnalyzePrefixesTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	location, ok := stringArg(args, "location_name")
	if !ok {
		return errorResult("location_name is required"), nil
	}

	prefixes, err := t.client.GetPrefixesByLocation(ctx, location)
	if err != nil {
		return failureResult(err, "Failed to analyze prefixes for location '%s': %v", location, err)
	}
	if len(prefixes) == 0 {
		return successResult(fmt.Sprintf("No prefixes found at location '%s'", location), 0, []any{}), nil
	}

	result := successResult(
		fmt.Sprintf("Analyzed %d prefixes at location '%s'", len(prefixes), location),
		len(prefixes),
		prefixRows(prefixes),
	)
	result["analysis"] = analyzePrefixes(prefixes)
	return result, nil
}

// prefixRows converts typed prefixes into the generic rows the envelope
// carries over the wire.
func prefixRows(prefixes []nautobot.Prefix) []any {
	rows := make([]any, 0, len(prefixes))
	for _, p := range prefixes {
		rows = append(rows, map[string]any{
			"prefix":      p.Prefix,
			"status":      p.Status,
			"role":        p.Role,
			"description": p.Description,
			"site":        p.Site,
		})
	}
	return rows
}

// usableHosts returns the practical host capacity of one prefix. IPv4
// subnets below /31 lose the network and broadcast addresses; IPv6 counts
// are capped at 2^62.
func usableHosts(p netip.Prefix) int64 {
	hostBits := p.Addr().BitLen() - p.Bits()
	if hostBits > 62 {
		hostBits = 62
	}
	n := int64(1) << hostBits
	if p.Addr().Is4() && hostBits > 1 {
		n -= 2
	}
	return n
}

// totalHosts sums host capacity across prefixes, skipping rows that do not
// parse as CIDR.
func totalHosts(prefixes []nautobot.Prefix) int64 {
	var total int64
	for _, p := range prefixes {
		if pfx, err := netip.ParsePrefix(p.Prefix); err == nil {
			total += usableHosts(pfx)
		}
	}
	return total
}

// analyzePrefixes computes the dataframe-style statistics block. The average
// mask length is rounded to one decimal since it renders verbatim.
func analyzePrefixes(prefixes []nautobot.Prefix) map[string]any {
	var totalHosts int64
	var sumBits, parsed int
	largest, smallest := 0, 0

	for _, p := range prefixes {
		pfx, err := netip.ParsePrefix(p.Prefix)
		if err != nil {
			continue
		}
		parsed++
		totalHosts += usableHosts(pfx)
		bits := pfx.Bits()
		sumBits += bits
		if largest == 0 || bits < largest {
			largest = bits
		}
		if bits > smallest {
			smallest = bits
		}
	}

	average := 0.0
	if parsed > 0 {
		average = math.Round(float64(sumBits)/float64(parsed)*10) / 10
	}
	return map[string]any{
		"total_hosts":     totalHosts,
		"average_subnet":  average,
		"largest_subnet":  largest,
		"smallest_subnet": smallest,
	}
}

// renderPrefixTable renders an aligned text table, one row per prefix.
func renderPrefixTable(prefixes []nautobot.Prefix) string {
	headers := []string{"Prefix", "Status", "Role", "Description"}
	rows := make([][]string, 0, len(prefixes))
	for _, p := range prefixes {
		rows = append(rows, []string{p.Prefix, p.Status, p.Role, p.Description})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			fmt.Fprintf(&b, "%-*s", widths[i], cell)
		}
		b.WriteString("\n")
	}
	writeRow(headers)
	for i, w := range widths {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(strings.Repeat("-", w))
	}
	b.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}

// renderPrefixCSV renders the export columns, including the computed
// network address and host capacity per row.
func renderPrefixCSV(prefixes []nautobot.Prefix) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Prefix", "Network", "Subnet", "Total Hosts", "Status", "Description", "Locations"})
	for _, p := range prefixes {
		var network, subnet, hosts string
		if pfx, err := netip.ParsePrefix(p.Prefix); err == nil {
			network = pfx.Masked().Addr().String()
			subnet = strconv.Itoa(pfx.Bits())
			hosts = strconv.FormatInt(usableHosts(pfx), 10)
		}
		_ = w.Write([]string{p.Prefix, network, subnet, hosts, p.Status, p.Description, p.Site})
	}
	w.Flush()
	return buf.String()
}

// csvFilename derives a stable filename from a location name.
func csvFilename(location string) string {
	name := strings.ToLower(strings.TrimSpace(location))
	name = strings.ReplaceAll(name, " ", "_")
	return fmt.Sprintf("prefixes_%s.csv", name)
}
