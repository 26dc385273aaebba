package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// newTriggerCmd creates the trigger command, which starts a pipeline
// stage by process key.
func newTriggerCmd() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "trigger PROCESS_KEY",
		Short: "Trigger a pipeline stage",
		Long: `Trigger a pipeline stage by its process key.

Known process keys:
  process_silver_int_inv_dtl   aggregate investor purchase profiles
  process_bnz_prcl_dtl         ingest parcel detail from the enrichment API
  process_slv_int_prp          match properties to investor profiles
  process_slv_pr_cmps          build property comparables
  call_slvr_int_prp_dtl        build the property sale history (background)
  bnz_prps_upd                 advance the raw property sale watermark

Stage parameters are passed with --param, e.g.:
  pipelinectl trigger bnz_prps_upd --param etl_recorded_gmts="2025-05-01 10:30:00" --param etl_nr=4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			query.Set("process_key", args[0])
			for _, p := range params {
				key, value, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("invalid --param %q (expected key=value)", p)
				}
				query.Set(key, value)
			}

			body, err := globalClient.doRequest("POST", "/api/pipeline/v1/trigger?"+query.Encode(), nil)
			if err != nil {
				return err
			}

			var result struct {
				Value *int64 `json:"value"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}

			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}
			if format != outputTable {
				return printOutput(cmd.OutOrStdout(), format, result, nil, nil)
			}

			if result.Value != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Stage %s started, generation %d\n", args[0], *result.Value)
				fmt.Fprintf(cmd.OutOrStdout(), "Check progress with: pipelinectl runs get --stage build-property-sale-history --generation %d\n", *result.Value)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stage %s completed\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "Stage parameter as key=value (repeatable)")

	return cmd
}
