/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazavi/yumekai-sub000/server/domain"
)

var followRooms bool

// roomsCmd represents the rooms command
var roomsCmd = &cobra.Command{
	Use:   "rooms [-f]",
	Short: "Lists rooms that still have a free seat.",
	Long: `Lists the open rooms on the watch-party server, newest first.
With -f, keeps the list on screen and reprints it whenever it changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if !followRooms {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Second*10)
			defer cancel()
		}

		return watchClient.WatchRooms(ctx, !followRooms, func(rooms []domain.RoomSummary) error {
			if followRooms {
				fmt.Print("\033[H\033[2J")
			}
			printRooms(cmd.OutOrStdout(), rooms)
			return nil
		})
	},
}

func printRooms(w io.Writer, rooms []domain.RoomSummary) {
	if len(rooms) == 0 {
		fmt.Fprintln(w, "No open rooms.")
		return
	}
	for _, r := range rooms {
		lock := "    "
		if r.IsPrivate {
			lock = "LOCK"
		}
		title := r.AnimeTitle
		if title == "" {
			title = "-"
		}
		created := time.UnixMilli(r.CreatedAt).Format("1/2 15:04")
		fmt.Fprintf(w, "%-4s  %2d/%-2d  %s  %-24s  %-16s  %s  %s\n",
			lock, r.ParticipantCount, r.MaxParticipants, created, r.ID, r.HostName, r.Name, title)
	}
}

func init() {
	rootCmd.AddCommand(roomsCmd)
	roomsCmd.Flags().BoolVarP(&followRooms, "follow", "f", false, "Keep watching the room list")
}
