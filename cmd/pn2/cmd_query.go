package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/49nn/ProveNuance2/internal/model"
	"github.com/49nn/ProveNuance2/internal/store"
)

var (
	queryHeadPred  string
	queryFragment  string
	queryAboutPred string
	queryType      string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Inspect persisted rules, conditions and assumptions",
}

var queryRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List stored rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		var rules []store.StoredRule
		switch {
		case queryHeadPred != "":
			rules, err = st.RulesByHeadPred(cmd.Context(), queryHeadPred)
		case queryFragment != "":
			rules, err = st.RulesByFragment(cmd.Context(), queryFragment)
		default:
			rules, err = st.AllRules(cmd.Context())
		}
		if err != nil {
			return err
		}
		return printJSON(rules)
	},
}

var queryConditionsCmd = &cobra.Command{
	Use:   "conditions [id...]",
	Short: "List condition definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) > 0 {
			out := make([]model.ConditionDefinition, 0, len(args))
			for _, id := range args {
				c, err := st.Condition(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("condition %s: %w", id, err)
				}
				out = append(out, c)
			}
			return printJSON(out)
		}
		conds, err := st.Conditions(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(conds)
	},
}

var queryAssumptionsCmd = &cobra.Command{
	Use:   "assumptions",
	Short: "List assumptions by type or predicate",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		switch {
		case queryType != "":
			out, err := st.AssumptionsByType(cmd.Context(), model.AssumptionType(queryType))
			if err != nil {
				return err
			}
			return printJSON(out)
		case queryAboutPred != "":
			out, err := st.AssumptionsByAboutPred(cmd.Context(), queryAboutPred)
			if err != nil {
				return err
			}
			return printJSON(out)
		default:
			return fmt.Errorf("provide --type or --about-pred")
		}
	},
}

func init() {
	queryRulesCmd.Flags().StringVar(&queryHeadPred, "head-pred", "", "filter by head predicate name/arity")
	queryRulesCmd.Flags().StringVar(&queryFragment, "fragment", "", "filter by fragment id")
	queryAssumptionsCmd.Flags().StringVar(&queryType, "type", "", "filter by assumption type")
	queryAssumptionsCmd.Flags().StringVar(&queryAboutPred, "about-pred", "", "filter by referenced predicate name/arity")

	queryCmd.AddCommand(queryRulesCmd)
	queryCmd.AddCommand(queryConditionsCmd)
	queryCmd.AddCommand(queryAssumptionsCmd)
}

func openStore() (*store.Store, error) {
	st, err := store.Open(dbPath, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", dbPath, err)
	}
	return st, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
