package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chilledornaments/htaccess-tester-core/pkg/rewrite"
)

func newEvalCmd() *cobra.Command {
	var rulesPath string
	var asJSON bool
	var serverVars map[string]string

	cmd := &cobra.Command{
		Use:   "eval <url>",
		Short: "Evaluate a single URL against a rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesBytes, err := os.ReadFile(rulesPath)
			if err != nil {
				return fmt.Errorf("reading rules file: %w", err)
			}

			out, err := rewrite.Evaluate(rewrite.Input{
				URL:             args[0],
				Rules:           string(rulesBytes),
				ServerVariables: serverVars,
			}, rewrite.Limits{})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			printHuman(cmd, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&rulesPath, "rules", "r", "", "path to a file containing RewriteCond/RewriteRule directives")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full Output struct as JSON instead of a human summary")
	cmd.Flags().StringToStringVarP(&serverVars, "var", "e", nil, "server variable to expose as NAME=value, repeatable")
	_ = cmd.MarkFlagRequired("rules")

	return cmd
}

func printHuman(cmd *cobra.Command, out rewrite.Output) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "final url : %s\n", out.FinalURL)
	fmt.Fprintf(w, "status    : %s\n", out.Status)
	if out.StatusCode != nil {
		fmt.Fprintf(w, "code      : %d\n", *out.StatusCode)
	}
	fmt.Fprintln(w, "trace:")
	for _, line := range out.Trace {
		mark := "."
		switch {
		case !line.Valid:
			mark = "!"
		case line.Met:
			mark = "+"
		case line.Reached:
			mark = "-"
		}
		fmt.Fprintf(w, "  %s %4d  %s\n", mark, line.LineNo, line.RawLine)
		if line.Message != nil {
			fmt.Fprintf(w, "       %s\n", *line.Message)
		}
	}
}
