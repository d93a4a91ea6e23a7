package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Show workflow status, or list all workflows if no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wfmAddr, _ := cmd.Flags().GetString("wfm-addr")

		url := wfmAddr + "/workflows"
		if len(args) == 1 {
			url = fmt.Sprintf("%s/workflows/%s", wfmAddr, args[0])
		}

		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("query workflow manager: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("workflow manager returned %s: %s", resp.Status, body)
		}

		var pretty any
		if err := json.Unmarshal(body, &pretty); err != nil {
			fmt.Println(string(body))
			return nil
		}
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	statusCmd.Flags().String("wfm-addr", "http://localhost:8080", "Workflow Manager base URL")
}
