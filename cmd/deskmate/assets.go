package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"deskmate/internal/avatar"
	"deskmate/internal/store"
	"deskmate/internal/types"
)

var motionsCmd = &cobra.Command{
	Use:   "motions",
	Short: "List motion groups from a model manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		if modelPath == "" {
			return fmt.Errorf("no model manifest given (use --model)")
		}
		idx, err := avatar.LoadMotionIndex(modelPath)
		if err != nil {
			return err
		}
		for _, group := range idx.GroupNames() {
			files := idx.Group(group)
			fmt.Printf("%s (%d)\n", group, len(files))
			for _, file := range files {
				fmt.Printf("  %s\n", file)
			}
		}
		return nil
	},
}

var expressionsCmd = &cobra.Command{
	Use:   "expressions",
	Short: "List expression presets and their parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := store.New(dataDir, logger)
		exprs := avatar.NewExpressionSet(st.LoadExpressions())
		for _, name := range exprs.Names() {
			params := exprs.Parameters(name)
			fmt.Printf("%s (%d parameters)\n", name, len(params))
			for _, target := range sortedTargets(params) {
				fmt.Printf("  %s = %g\n", target.ID, target.Value)
			}
		}
		return nil
	},
}

func sortedTargets(params map[string]float64) []types.ParameterTarget {
	out := make([]types.ParameterTarget, 0, len(params))
	for id, value := range params {
		out = append(out, types.ParameterTarget{ID: id, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
