/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <room_id>",
	Short: "Joins a room and opens the room view.",
	Long: `Joins a watch-party room and opens a tview-based room view.
Type a message at the bottom to chat. Lines starting with / are commands:
/play, /pause, /seek <seconds>, /ep <n>, /anime <slug>, /leave, /help.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := args[0]
		password, _ := cmd.Flags().GetString("password")

		me := identity()
		session, err := watchClient.OpenSession(context.Background(), me)
		if err != nil {
			return err
		}
		defer session.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		err = session.Join(ctx, roomID, password)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
		return runRoomUI(session, me, roomID)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringP("password", "p", "", "Password of a private room")
}
