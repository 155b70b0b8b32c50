package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harun/toolkit/pkg/toolexecutor"
	"github.com/harun/toolkit/pkg/toolhttp"
)

func newToolsCmd(opts *rootOptions) *cobra.Command {
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect registered tools",
	}
	toolsCmd.AddCommand(newToolsListCmd(opts), newToolsDescribeCmd(opts))
	return toolsCmd
}

func newToolsListCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		tag    string
		remote string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptors, err := listDescriptors(cmd, opts, remote)
			if err != nil {
				return err
			}
			if tag != "" {
				filtered := descriptors[:0]
				for _, d := range descriptors {
					if containsString(d.Tags, tag) {
						filtered = append(filtered, d)
					}
				}
				descriptors = filtered
			}
			return writeDescriptors(cmd.OutOrStdout(), format, descriptors)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, json, yaml)")
	cmd.Flags().StringVar(&tag, "tag", "", "only list tools with this tag")
	cmd.Flags().StringVar(&remote, "remote", "", "list tools of a remote server instead")
	return cmd
}

func newToolsDescribeCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		remote string
	)

	cmd := &cobra.Command{
		Use:   "describe <name>",
		Short: "Show a tool descriptor and its input schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var desc toolexecutor.Descriptor
			if remote != "" {
				d, err := newRemoteClient(remote, "").Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				desc = d
			} else {
				rt, err := opts.newRuntime(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer rt.Close()

				def, err := rt.registry.Lookup(args[0])
				if err != nil {
					return err
				}
				desc = def.Descriptor()
			}

			if format == "yaml" {
				return writeYAML(cmd.OutOrStdout(), desc)
			}
			return writeJSON(cmd.OutOrStdout(), desc)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json, yaml)")
	cmd.Flags().StringVar(&remote, "remote", "", "describe a tool of a remote server instead")
	return cmd
}

func listDescriptors(cmd *cobra.Command, opts *rootOptions, remote string) ([]toolexecutor.Descriptor, error) {
	if remote != "" {
		return newRemoteClient(remote, "").List(cmd.Context())
	}

	rt, err := opts.newRuntime(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	return rt.registry.Descriptors(), nil
}

func writeDescriptors(w io.Writer, format string, descriptors []toolexecutor.Descriptor) error {
	switch format {
	case "json":
		return writeJSON(w, descriptors)
	case "yaml":
		return writeYAML(w, descriptors)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tTAGS\tSERVER-ONLY\tCLIENT\tPOLICY\tDESCRIPTION")
		for _, d := range descriptors {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\t%s\n",
				d.Name,
				strings.Join(d.Tags, ","),
				d.ServerOnly,
				d.HasClientHandler,
				policySummary(d.Metadata),
				d.Description,
			)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q (must be one of: table, json, yaml)", format)
	}
}

// policySummary renders retry/timeout/cache metadata compactly, e.g.
// "retry=3 timeout=10s cache".
func policySummary(meta map[string]interface{}) string {
	var parts []string
	if n := toInt(meta["retry"]); n > 1 {
		parts = append(parts, fmt.Sprintf("retry=%d", n))
	}
	if ms := toInt(meta["timeoutMs"]); ms > 0 {
		parts = append(parts, fmt.Sprintf("timeout=%dms", ms))
	}
	if cached, _ := meta["cache"].(bool); cached {
		parts = append(parts, "cache")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

// toInt accepts local (int, int64) and decoded (float64) metadata values.
func toInt(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func newRemoteClient(baseURL, secret string) *toolhttp.Client {
	return toolhttp.NewClient(baseURL, toolhttp.WithSecret(secret), toolhttp.WithCallerID("toolkit-cli"))
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
