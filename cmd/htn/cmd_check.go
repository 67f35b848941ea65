package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"htnplan/internal/loader"
)

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check DOMAIN [PROBLEM...]",
		Short: "Validate a domain and its problems without planning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			d, err := loader.LoadDomain(args[0])
			if err != nil {
				return err
			}
			st := d.Stats()
			fmt.Fprintln(out, renderKV("domain "+d.Name, [][2]string{
				{"operators", strconv.Itoa(st.Operators)},
				{"methods", fmt.Sprintf("%d (%d branches)", st.Methods, st.Branches)},
				{"axioms", strconv.Itoa(st.Axioms)},
				{"symbols", strconv.Itoa(st.Symbols)},
			}))

			failed := 0
			for _, path := range args[1:] {
				p, err := loader.LoadProblem(path, d)
				if err != nil {
					failed++
					fmt.Fprintln(out, errorStyle.Render("✗"), err)
					continue
				}
				fmt.Fprintf(out, "%s %s: %d atoms, %d tasks, root %s\n",
					titleStyle.Render("✓"), problemLabel(p, path), p.State.Len(), len(p.Tasks.Atoms()), p.Tasks.Format(d))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d problems failed to load", failed, len(args)-1)
			}
			return nil
		},
	}
}
