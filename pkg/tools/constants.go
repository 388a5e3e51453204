package tools

// Tool name constants - use these instead of magic strings to prevent typos
// and enable compile-time checking.
const (
	// Prefix tools.
	ToolGetPrefixesByLocation = "get_prefixes_by_location"
	ToolExportPrefixesToCSV   = "export_prefixes_to_csv"
	ToolAnalyzePrefixes       = "analyze_prefixes_dataframe"

	// Device tools.
	ToolGetDevicesByLocation        = "get_devices_by_location"
	ToolGetDevicesByLocationAndRole = "get_devices_by_location_and_role"
	ToolGetInterfacesByDevice       = "get_interfaces_by_device"

	// Circuit tools.
	ToolGetCircuitsByLocation = "get_circuits_by_location"
	ToolGetCircuitsByProvider = "get_circuits_by_provider"

	// Discovery tools.
	ToolGetLocations = "get_locations"
	ToolGetProviders = "get_providers"
)

// DefaultTools is the standard allow-list the MCP server exposes.
//
//nolint:gochecknoglobals // Shared allow-list referenced by server wiring and tests
var DefaultTools = []string{
	ToolGetPrefixesByLocation,
	ToolExportPrefixesToCSV,
	ToolAnalyzePrefixes,
	ToolGetDevicesByLocation,
	ToolGetDevicesByLocationAndRole,
	ToolGetInterfacesByDevice,
	ToolGetCircuitsByLocation,
	ToolGetCircuitsByProvider,
	ToolGetLocations,
	ToolGetProviders,
}
