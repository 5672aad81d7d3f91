package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelsec/ransomchat/internal/config"
	"github.com/kestrelsec/ransomchat/internal/persona"
)

func newPersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List the available threat-actor personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			profiles, err := persona.List(cfg.Personas.Dir)
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Printf("no behaviour profiles found in %s\n", cfg.Personas.Dir)
				return nil
			}

			for _, p := range profiles {
				fmt.Printf("%-24s %d bytes\n", p.Name, p.Size)
			}
			return nil
		},
	}
}
