package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
)

// prefixCapability is the one capability the heuristic planner knows how to
// drive.
const prefixCapability = "get_prefixes_by_location"

const defaultLocation = "HQ-Dallas"

// knownLocations are matched case-insensitively before any pattern
// extraction. The "ofice" entry covers a long-standing typo in the seed
// inventory.
//
//nolint:gochecknoglobals // Static lookup table
var knownLocations = []string{
	"hq-dallas", "lab-austin", "hq-london", "hq-sydney",
	"branch office 1", "branch office 2", "branch office 3", "branch ofice 3",
	"data center 1", "data center 2", "campus a", "campus b",
}

//nolint:gochecknoglobals // Static patterns compiled once
var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:at|in|for)\s+([A-Za-z0-9\-\s]+?)(?:\s|$|\.|\?)`),
	regexp.MustCompile(`(?i)(?:site|office|branch|location)\s+([A-Za-z0-9\-\s]+?)(?:\s|$|\.|\?)`),
}

// locationStopwords are pattern captures that are grammar, not locations.
//
//nolint:gochecknoglobals // Static lookup table
var locationStopwords = map[string]struct{}{
	"prefixes": {}, "prefix": {}, "what": {}, "show": {},
	"find": {}, "me": {}, "the": {}, "location": {},
}

// HeuristicPlanner decides without a model: keyword intent detection, a
// known-location table, and format keywords drive at most one capability
// call followed by a templated answer. It serves deployments with no API
// key configured and keeps integration tests deterministic.
type HeuristicPlanner struct {
	logger *logx.Logger
}

// NewHeuristicPlanner creates the no-model fallback planner.
func NewHeuristicPlanner(logger *logx.Logger) *HeuristicPlanner {
	if logger == nil {
		logger = logx.NewLogger("planner")
	}
	return &HeuristicPlanner{logger: logger}
}

// Decide inspects the newest user message. The first round either answers
// smalltalk directly or requests one prefix lookup; after a round has run,
// its result is folded into a templated final answer.
func (h *HeuristicPlanner) Decide(_ context.Context, req *Request) (*Decision, error) {
	message := latestUserMessage(req.History)

	if len(req.Rounds) > 0 {
		return h.summarize(req), nil
	}

	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "help", "what can you do", "capabilities"):
		return &Decision{Kind: DecisionFinal, Answer: helpAnswer}, nil
	case isNetworkQuery(lower) || isNetworkFollowUp(lower, req.History):
		return h.planNetworkCall(req, message, lower), nil
	default:
		return &Decision{Kind: DecisionFinal, Answer: smalltalkAnswer(lower)}, nil
	}
}

// isNetworkQuery requires both a data word and a location word, so "what is
// a subnet" stays conversational.
func isNetworkQuery(lower string) bool {
	return containsAny(lower, "prefix", "network", "subnet", "ip") &&
		containsAny(lower, "location", "branch", "office", "hq", "dallas", "austin")
}

// isNetworkFollowUp treats short deictic messages ("show me that as a
// table") as network queries when the conversation already covered network
// data.
func isNetworkFollowUp(lower string, history []Message) bool {
	if !containsAny(lower, "it", "them", "those", "this", "that", "the", "show", "give",
		"get", "as", "in", "can you", "please", "format", "put", "make", "provide") {
		return false
	}
	var prior strings.Builder
	for i := range history {
		prior.WriteString(strings.ToLower(history[i].Content))
		prior.WriteString(" ")
	}
	return containsAny(prior.String(), "prefix", "network", "branch office")
}

func (h *HeuristicPlanner) planNetworkCall(req *Request, message, lower string) *Decision {
	if !catalogHas(req.Catalog, prefixCapability) {
		return &Decision{
			Kind:   DecisionFinal,
			Answer: "I can normally look up network prefixes, but that capability is not available right now. Please try again later.",
		}
	}

	location := resolveLocation(message, req.History)
	format := detectFormat(lower, isNetworkFollowUp(lower, req.History))

	h.logger.Info("🔧 Heuristic plan: %s(location_name=%q, format=%s)", prefixCapability, location, format)

	return &Decision{
		Kind: DecisionCalls,
		Calls: []capability.CallRequest{{
			CapabilityName: prefixCapability,
			Arguments:      map[string]any{"location_name": location, "format": format},
		}},
	}
}

// summarize folds the newest round's first result into a final answer.
func (h *HeuristicPlanner) summarize(req *Request) *Decision {
	round := &req.Rounds[len(req.Rounds)-1]
	if len(round.Results) == 0 {
		return &Decision{Kind: DecisionFinal, Answer: "I could not retrieve any data for that request."}
	}

	res := &round.Results[0]
	location := defaultLocation
	format := "json"
	if len(round.Requests) > 0 {
		if v, ok := round.Requests[0].Arguments["location_name"].(string); ok && v != "" {
			location = v
		}
		if v, ok := round.Requests[0].Arguments["format"].(string); ok && v != "" {
			format = v
		}
	}

	if !res.OK() {
		return &Decision{
			Kind:   DecisionFinal,
			Answer: fmt.Sprintf("Sorry, I encountered an error while looking up prefixes for %s: %s", location, res.Message),
		}
	}

	return &Decision{Kind: DecisionFinal, Answer: renderPayload(res, location, format)}
}

// resolveLocation extracts a location from the message, falling back to the
// newest user message in history that names one. The default only stands
// when nothing better is found anywhere.
func resolveLocation(message string, history []Message) string {
	loc := extractLocation(message)
	if !isWeakLocation(loc) {
		return loc
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "user" {
			continue
		}
		if cand := extractLocation(history[i].Content); !isWeakLocation(cand) {
			return cand
		}
	}
	return loc
}

// extractLocation finds a location name in the message: known locations
// first (preserving the user's casing), then at/in/for and site/office
// style patterns, defaulting to the headquarters site.
func extractLocation(message string) string {
	lower := strings.ToLower(message)

	for _, loc := range knownLocations {
		if idx := strings.Index(lower, loc); idx >= 0 {
			return message[idx : idx+len(loc)]
		}
	}

	for _, pattern := range locationPatterns {
		for _, match := range pattern.FindAllStringSubmatch(message, -1) {
			cand := strings.TrimSpace(match[1])
			if cand == "" {
				continue
			}
			if _, stop := locationStopwords[strings.ToLower(cand)]; !stop {
				return cand
			}
		}
	}

	return defaultLocation
}

// isWeakLocation reports whether a candidate is the default or a pattern
// artifact that should yield to history.
func isWeakLocation(loc string) bool {
	switch strings.ToLower(loc) {
	case strings.ToLower(defaultLocation), "a", "to", "in", "as", "the", "data", "format", "table", "csv", "export":
		return true
	}
	return false
}

// detectFormat maps request phrasing to an output format. Follow-ups that
// ask to "show" data default to a table instead of raw JSON.
func detectFormat(lower string, followUp bool) string {
	switch {
	case containsAny(lower, "table", "as table", "show table"):
		return "table"
	case containsAny(lower, "csv", "export", "download", "file"):
		return "csv"
	case containsAny(lower, "dataframe", "analysis", "analyze"):
		return "dataframe"
	}
	if followUp && containsAny(lower, "show", "give", "get", "provide") {
		return "table"
	}
	return "json"
}

// renderPayload formats a successful lookup per the requested format.
func renderPayload(res *capability.CallResult, location, format string) string {
	payload := res.Payload
	success, _ := payload["success"].(bool)
	data := payload["data"]
	if !success || data == nil {
		if msg := res.ResultSummary(); msg != "" {
			return msg
		}
		return fmt.Sprintf("No prefixes found at %s.", location)
	}

	var b strings.Builder
	switch format {
	case "table":
		fmt.Fprintf(&b, "📋 **Prefixes Table for %s**\n\n", location)
		b.WriteString("Here's a formatted table of the prefixes:\n\n")
		if rendered, ok := data.(string); ok {
			b.WriteString(rendered)
		}
	case "dataframe":
		fmt.Fprintf(&b, "📊 **Data Analysis for %s**\n\n", location)
		if analysis, ok := payload["analysis"].(map[string]any); ok {
			fmt.Fprintf(&b, "• **Total Hosts**: %v\n", analysis["total_hosts"])
			fmt.Fprintf(&b, "• **Average Subnet**: /%v\n", analysis["average_subnet"])
			fmt.Fprintf(&b, "• **Largest Subnet**: /%v\n", analysis["largest_subnet"])
			fmt.Fprintf(&b, "• **Smallest Subnet**: /%v\n", analysis["smallest_subnet"])
		}
		fmt.Fprintf(&b, "\nFound %d prefixes with detailed analysis.", res.ResultCount())
	case "csv":
		fmt.Fprintf(&b, "📥 **CSV Export for %s**\n\n", location)
		fmt.Fprintf(&b, "CSV data has been generated for %s.\n", location)
		if filename, ok := payload["filename"].(string); ok {
			fmt.Fprintf(&b, "Filename: %s\n", filename)
		}
		b.WriteString("\nYou can download this data for further analysis in Excel or other tools.")
	default: // json
		prefixes := prefixStrings(data)
		fmt.Fprintf(&b, "Found %d prefixes at %s. ", len(prefixes), location)
		if len(prefixes) > 5 {
			fmt.Fprintf(&b, "First 5 prefixes: %s... (and %d more)", strings.Join(prefixes[:5], ", "), len(prefixes)-5)
		} else {
			fmt.Fprintf(&b, "All prefixes: %s", strings.Join(prefixes, ", "))
		}
		if summary, ok := payload["summary"].(map[string]any); ok {
			fmt.Fprintf(&b, "\n\n📊 Summary: %v prefixes with %v total hosts",
				summary["total_prefixes"], summary["total_hosts"])
		}
	}

	b.WriteString("\n\n💡 **Other Format Options**:\n")
	b.WriteString("• Ask for 'table format' to see a formatted table\n")
	b.WriteString("• Ask for 'CSV export' to download the data\n")
	b.WriteString("• Ask for 'data analysis' to get statistical insights")

	return b.String()
}

// prefixStrings pulls the prefix field from each entry of a JSON data list.
func prefixStrings(data any) []string {
	items, ok := data.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if p, ok := m["prefix"].(string); ok {
				out = append(out, p)
			}
		}
	}
	return out
}

func latestUserMessage(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	return ""
}

func catalogHas(catalog []capability.Capability, name string) bool {
	for i := range catalog {
		if catalog[i].Name == name {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func smalltalkAnswer(lower string) string {
	switch {
	case containsAny(lower, "hello", "hi", "hey", "greetings"):
		return greetingAnswer
	case containsAny(lower, "how are you", "how do you do", "are you ok"):
		return statusAnswer
	case containsAny(lower, "thanks", "thank you", "appreciate"):
		return thanksAnswer
	case containsAny(lower, "bye", "goodbye", "see you", "later"):
		return farewellAnswer
	default:
		return generalAnswer
	}
}

const greetingAnswer = `Hello! I'm an assistant that can help you with network information and data analysis.

I have access to Nautobot network data and can help you with:
• Network prefix information and analysis
• Data formatting and export options
• General questions about network infrastructure

What would you like to work on today?`

const statusAnswer = `I'm doing well, thank you for asking! I'm ready to help you with whatever you need.

I'm particularly good at working with network data and can help you analyze, format, and export information from Nautobot. What can I assist you with today?`

const thanksAnswer = `You're very welcome! I'm happy to help.

Is there anything else you'd like to know or work on? I'm here to assist with network data analysis, formatting, or any other questions you might have.`

const farewellAnswer = `Goodbye! It was great working with you. Feel free to come back anytime if you need help with network data analysis or any other tasks. Have a wonderful day!`

const generalAnswer = `I'm an assistant that can help you with network information and data analysis.

I have access to Nautobot network data and can help you with:
• Network prefix information and analysis
• Data formatting and export options
• General questions about network infrastructure

What would you like to work on today? You can ask me about specific network locations or request data in different formats.`

const helpAnswer = `I can help you with Nautobot network information! Here are some things I can do:

1. **Find prefixes by location**: Ask me "What prefixes exist at HQ-Dallas?" or "Show me prefixes at Branch Office 3"

2. **Multiple format options**:
   • **JSON format** (default): "What prefixes are at Branch Office 3?"
   • **Table format**: "Show me prefixes at Branch Office 3 as a table"
   • **CSV export**: "Export prefixes from Branch Office 3 to CSV"
   • **Data analysis**: "Analyze prefixes at Branch Office 3"

3. **Follow-up questions**: I maintain conversation context, so you can ask things like:
   • "Show me that as a table"
   • "Export that to CSV"
   • "Analyze that data"

Just ask me about prefixes at a specific location and I'll look it up for you!`
