package cmd

import (
	"fmt"
	"io"

	"gst-ledger-reconciler/internal/profile"

	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles [name]",
	Short: "List the built-in reconciliation profiles",
	Long: `Profiles lists the built-in reconciliation profiles with their sections.
Pass a profile name to print its YAML, a starting point for a custom profile.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return printProfileYAML(cmd.OutOrStdout(), args[0])
		}
		return listProfiles(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func listProfiles(w io.Writer) error {
	for _, name := range profile.Names() {
		p, ok := profile.Builtin(name)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\n", name)
		if p.Description != "" {
			fmt.Fprintf(w, "  %s\n", p.Description)
		}
		for _, section := range p.Sections {
			fmt.Fprintf(w, "  - %s: %s -> %s (%d fields)",
				section.Name, section.Source.Table, section.Target.Table, len(section.Fields))
			if whole, ok := section.WholeDocumentField(); ok {
				fmt.Fprintf(w, ", whole document: %s", whole.Source)
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

func printProfileYAML(w io.Writer, name string) error {
	p, err := profile.Resolve(name)
	if err != nil {
		return err
	}
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
