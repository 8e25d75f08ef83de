package main

import (
	"fmt"
	"os"

	"github.com/soochol/salesconnect/internal/config"
	"github.com/soochol/salesconnect/internal/crypto"
	"github.com/soochol/salesconnect/internal/integration"
	"github.com/soochol/salesconnect/internal/statetoken"
	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect OAuth state parameters",
	}

	var key, typ string
	decode := &cobra.Command{
		Use:   "decode <state>",
		Short: "Print the user and organization carried by a state parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state := args[0]
			if key != "" {
				t, err := integration.ParseType(typ)
				if err != nil {
					return err
				}
				// TTL is not enforced when inspecting.
				sealer, err := crypto.NewStateSealerFromHex(key, 0)
				if err != nil {
					return err
				}
				state, err = sealer.Open(state, string(t))
				if err != nil {
					return fmt.Errorf("open sealed state: %w", err)
				}
			}
			userID, orgID, err := statetoken.Decode(state)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user: %s\norganization: %s\n", userID, orgID)
			return nil
		},
	}
	decode.Flags().StringVar(&key, "key", os.Getenv(config.EnvStateKey), "Hex state key for sealed states")
	decode.Flags().StringVar(&typ, "type", string(integration.TypeHubSpotUser), "Integration type the state was issued for")
	cmd.AddCommand(decode)
	return cmd
}
