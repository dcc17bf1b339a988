package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocketbitz/cci-go/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the CCI_CONFIG device registry",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Parse CCI_CONFIG and print the device registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyConfigFile(); err != nil {
			return err
		}
		specs, err := config.Load()
		if err != nil {
			return err
		}
		if len(specs) == 0 {
			fmt.Println("no devices configured")
			return nil
		}
		for _, d := range specs {
			marker := ""
			if d.Default {
				marker = " (default)"
			}
			fmt.Printf("[%s]%s transport=%s priority=%d\n", d.Name, marker, d.Transport, d.Priority)
			for k, v := range d.Params {
				fmt.Printf("    %s = %s\n", k, v)
			}
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
}
