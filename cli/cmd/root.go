/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hazavi/yumekai-sub000/cli/client"
	"github.com/hazavi/yumekai-sub000/server/domain"
)

var (
	cfgFile     string
	serverAddr  string
	watchClient *client.Client
)

const (
	serverAddressKey = "server"
	uidKey           = "uid"
	displayNameKey   = "display_name"
	photoURLKey      = "photo_url"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "yumekai",
	Short: "Watch anime together from the terminal",
	Long: `yumekai talks to a watch-party server: list open rooms, create one,
or join a room and chat while the host drives the episode and playback.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.Dial(serverAddr)
		if err != nil {
			return err
		}
		watchClient = c
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if watchClient != nil {
			err := watchClient.Close()
			watchClient = nil
			return err
		}
		return nil
	},
}

// Execute runs a single command when arguments are given and an interactive
// prompt otherwise.
func Execute() {
	// one‑shot
	if len(os.Args) > 1 {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	// REPL
	fmt.Println("entering interactive mode, type 'exit' to quit")
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("❯❯❯ ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		args, err := shellwords.Parse(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing command: %v\n", err)
			continue
		}
		rootCmd.SetArgs(args)
		resetFlags(rootCmd)
		if err := rootCmd.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
}

// resetFlags clears flag values left over from the previous REPL command.
func resetFlags(cmd *cobra.Command) {
	for _, sub := range cmd.Commands() {
		sub.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				f.Value.Set(f.DefValue)
				f.Changed = false
			}
		})
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.yumekai-cli.yaml)")
	rootCmd.PersistentFlags().String("server", "localhost:50051", "Address of the watch-party gRPC server")
	rootCmd.PersistentFlags().String("uid", "", "Your user id (generated when empty)")
	rootCmd.PersistentFlags().String("name", "", "Your display name")

	viper.BindPFlag(serverAddressKey, rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag(uidKey, rootCmd.PersistentFlags().Lookup("uid"))
	viper.BindPFlag(displayNameKey, rootCmd.PersistentFlags().Lookup("name"))
	viper.SetDefault(serverAddressKey, "localhost:50051")
	viper.SetDefault(photoURLKey, "")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".yumekai-cli" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".yumekai-cli")
	}

	viper.SetEnvPrefix("YUMEKAI")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}

	serverAddr = viper.GetString(serverAddressKey)
	if viper.GetString(uidKey) == "" {
		viper.Set(uidKey, uuid.NewString())
	}
}

// identity is who this CLI introduces itself as. The display name falls back
// to $USER and then to a prefix of the uid.
func identity() domain.Identity {
	uid := viper.GetString(uidKey)
	name := viper.GetString(displayNameKey)
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" && len(uid) >= 8 {
		name = "guest-" + uid[:8]
	}
	return domain.NewIdentity(uid, name, viper.GetString(photoURLKey))
}
