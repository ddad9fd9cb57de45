// cmd/server/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "esplit",
	Short: "Esplit audio upload service",
	Long: `Esplit accepts audio files from signed-in users, stores them in object
storage and queues a job record for the separation workers.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env_file", ".env", "Optional dotenv file loaded before the environment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
