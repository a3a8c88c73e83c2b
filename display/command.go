// Package display decides between human and machine output for commands.
package display

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// EnvJSON forces JSON output when set to a true value, for scripted runs.
const EnvJSON = "EDITHIST_JSON"

// ShouldOutputJSON determines if a command should output JSON based on flags
// and the EDITHIST_JSON environment variable
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return envJSON()
	}

	if cmd.Flags().Lookup("json") != nil && cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}

	if globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json"); globalFlag {
		return true
	}
	return envJSON()
}

func envJSON() bool {
	switch os.Getenv(EnvJSON) {
	case "1", "true", "TRUE", "yes":
		return true
	}
	return false
}

// OutputJSON marshals and prints JSON using display.MarshalJSON
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
