package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newPipelineCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline",
		Short: "Show the server's compiled pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := http.Get(app.server + "/v1/pipeline")
			if err != nil {
				return fmt.Errorf("call server: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			var view struct {
				Name  string `json:"name"`
				Steps []struct {
					Name        string `json:"name"`
					Capability  string `json:"capability"`
					Remote      bool   `json:"remote"`
					Placeholder bool   `json:"placeholder"`
				} `json:"steps"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pipeline: %s\n", view.Name)
			for _, step := range view.Steps {
				locality := "local"
				if step.Remote {
					locality = "remote"
				}
				marker := ""
				if step.Placeholder {
					marker = " (placeholder)"
				}
				fmt.Fprintf(out, "  %-24s %-14s %s%s\n", step.Name, step.Capability, locality, marker)
			}
			return nil
		},
	}
}
