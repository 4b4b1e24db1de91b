package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	flagbag "github.com/TimurManjosov/goflagbag"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// bagView is the serializable projection of a flag bag.
type bagView struct {
	Flags      flagbag.Flags `json:"flags" yaml:"flags"`
	RawFlags   flagbag.Flags `json:"rawFlags" yaml:"raw_flags"`
	Fetching   bool          `json:"fetching" yaml:"fetching"`
	Settled    bool          `json:"settled" yaml:"settled"`
	VisitorKey string        `json:"visitorKey" yaml:"visitor_key"`
}

// PrintBag outputs a flag bag in the specified format.
func PrintBag(w io.Writer, bag flagbag.FlagBag, format OutputFormat) error {
	view := bagView{
		Flags:      bag.Flags,
		RawFlags:   bag.RawFlags,
		Fetching:   bag.Fetching,
		Settled:    bag.Settled,
		VisitorKey: bag.VisitorKey,
	}

	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(view)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		encoder.SetIndent(2)
		return encoder.Encode(view)
	case FormatTable:
		return printBagTable(w, view)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printBagTable(w io.Writer, view bagView) error {
	table := tablewriter.NewWriter(w)
	table.Header("Flag", "Value", "Source")

	keys := make([]string, 0, len(view.Flags))
	for k := range view.Flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		source := "default"
		if _, evaluated := view.RawFlags[k]; evaluated {
			source = "evaluated"
		}
		table.Append(k, fmt.Sprintf("%v", view.Flags[k]), source)
	}

	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "visitor: %s  settled: %t  fetching: %t\n",
		view.VisitorKey, view.Settled, view.Fetching)
	return err
}
