package openai

import (
	"strings"
	"testing"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
)

// TestNewClient tests client creation.
func TestNewClient(t *testing.T) {
	client := NewClient("test-api-key", "gpt-4o")

	if client == nil {
		t.Fatal("expected client, got nil")
	}

	var _ llm.Client = client
}

// TestGetModelName tests model name retrieval.
func TestGetModelName(t *testing.T) {
	client := NewClient("test-key", "gpt-4o-mini")

	if got := client.GetModelName(); got != "gpt-4o-mini" {
		t.Errorf("expected model %q, got %q", "gpt-4o-mini", got)
	}
}

// TestBuildInput tests conversation flattening for the Responses API.
func TestBuildInput(t *testing.T) {
	messages := []llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "You are a network assistant."},
		{Role: llm.RoleUser, Content: "What devices are in DAL01?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "get_devices_by_location", Parameters: map[string]any{"location_name": "DAL01"}},
		}},
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{
			{ToolCallID: "call_1", Content: `{"success": true, "count": 12}`},
		}},
	}

	input := buildInput(messages)

	for _, want := range []string{
		"System: You are a network assistant.",
		"What devices are in DAL01?",
		`Assistant called get_devices_by_location({"location_name":"DAL01"})`,
		`Tool result (call_1): {"success": true, "count": 12}`,
	} {
		if !strings.Contains(input, want) {
			t.Errorf("input missing %q:\n%s", want, input)
		}
	}
}

// TestBuildInputToolError tests error results are labeled.
func TestBuildInputToolError(t *testing.T) {
	messages := []llm.CompletionMessage{
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{
			{ToolCallID: "call_9", Content: "backend timeout", IsError: true},
		}},
	}

	input := buildInput(messages)

	if !strings.Contains(input, "Tool error (call_9): backend timeout") {
		t.Errorf("error label missing:\n%s", input)
	}
}

// TestBuildInputEmpty tests that an empty history produces an empty input.
func TestBuildInputEmpty(t *testing.T) {
	if got := buildInput(nil); got != "" {
		t.Errorf("expected empty input, got %q", got)
	}
}

// TestConvertPropertyToSchema tests property to schema conversion.
func TestConvertPropertyToSchema(t *testing.T) {
	tests := []struct {
		name     string
		property capability.Property
		wantType string
		hasEnum  bool
		hasItems bool
	}{
		{
			name: "simple string",
			property: capability.Property{
				Type:        "string",
				Description: "Location code",
			},
			wantType: "string",
			hasEnum:  false,
		},
		{
			name: "string with enum",
			property: capability.Property{
				Type:        "string",
				Description: "Output format",
				Enum:        []string{"json", "table", "dataframe", "csv"},
			},
			wantType: "string",
			hasEnum:  true,
		},
		{
			name: "array type",
			property: capability.Property{
				Type:        "array",
				Description: "List of prefixes",
				Items: &capability.Property{
					Type:        "string",
					Description: "CIDR prefix",
				},
			},
			wantType: "array",
			hasItems: true,
		},
		{
			name: "number type",
			property: capability.Property{
				Type:        "number",
				Description: "A number",
			},
			wantType: "number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := convertPropertyToSchema(&tt.property)

			if schema["type"] != tt.wantType {
				t.Errorf("expected type %q, got %v", tt.wantType, schema["type"])
			}

			if schema["description"] != tt.property.Description {
				t.Errorf("expected description %q, got %v", tt.property.Description, schema["description"])
			}

			if tt.hasEnum {
				if _, ok := schema["enum"]; !ok {
					t.Error("expected enum field to be set")
				}
			}

			if tt.hasItems {
				if _, ok := schema["items"]; !ok {
					t.Error("expected items field to be set")
				}
			}
		})
	}
}

// TestConvertPropertyToSchemaNestedObject tests recursive object conversion.
func TestConvertPropertyToSchemaNestedObject(t *testing.T) {
	prop := capability.Property{
		Type: "object",
		Properties: map[string]*capability.Property{
			"prefix": {Type: "string", Description: "CIDR prefix"},
			"vlan":   {Type: "integer", Description: "VLAN id"},
		},
		Required: []string{"prefix"},
	}

	schema := convertPropertyToSchema(&prop)

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected nested properties, got %T", schema["properties"])
	}
	if len(properties) != 2 {
		t.Errorf("expected 2 nested properties, got %d", len(properties))
	}

	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "prefix" {
		t.Errorf("expected required [prefix], got %v", schema["required"])
	}
}
