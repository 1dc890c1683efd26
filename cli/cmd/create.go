/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazavi/yumekai-sub000/server/domain"
)

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Creates a room and opens it.",
	Long: `Creates a watch-party room with you as its host and opens the room view.
The room lives on after you leave until it has been empty for a while.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		private, _ := cmd.Flags().GetBool("private")
		password, _ := cmd.Flags().GetString("password")
		maxParticipants, _ := cmd.Flags().GetInt("max")

		spec := domain.CreateRoomSpec{
			Name:            args[0],
			IsPrivate:       private,
			Password:        password,
			MaxParticipants: maxParticipants,
		}
		if err := spec.Validate(); err != nil {
			return err
		}

		me := identity()
		session, err := watchClient.OpenSession(context.Background(), me)
		if err != nil {
			return err
		}
		defer session.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		roomID, err := session.Create(ctx, spec)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		return runRoomUI(session, me, roomID)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().Bool("private", false, "Require a password to join")
	createCmd.Flags().String("password", "", "Room password (private rooms only)")
	createCmd.Flags().Int("max", domain.AllowedMaxParticipants[1], "Maximum participants (2, 4, 6, 8 or 10)")
}
