package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hivegrid/hivegrid/internal/plan"
	"github.com/hivegrid/hivegrid/internal/scheduler"
)

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <plan.json>",
		Short: "Validate a plan and show its execution groups",
		Long: `Loads a plan file, checks it for duplicate IDs, unknown dependencies, and
cycles, then prints the execution groups the run would use. Nothing is
executed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.Load(args[0])
			if err != nil {
				return err
			}

			groups, err := scheduler.BuildGroups(p.Nodes())
			if err != nil {
				return err
			}

			fmt.Printf("Plan %q: %d tasks in %d groups\n\n", p.Name, len(p.Tasks), len(groups))
			for i, group := range groups {
				fmt.Printf("Group %d (%d tasks):\n", i+1, len(group))
				for _, n := range group {
					line := "  " + n.ID
					if n.Resource != "" {
						line += "  [" + n.Resource + "]"
					}
					if len(n.DependsOn) > 0 {
						line += "  after " + strings.Join(n.DependsOn, ", ")
					}
					fmt.Println(line)
				}
				fmt.Println()
			}

			return nil
		},
	}

	return cmd
}
