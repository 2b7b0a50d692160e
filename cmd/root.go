package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "osf",
	Short: "node hierarchy management tool",
	Example: `osf node create -u <user-id> -t <title>
osf node get -g <guid>
osf node children -g <guid>
osf node fork -u <user-id> -g <guid>
osf node register -u <user-id> -g <guid> -s <schema>
osf node privacy -u <user-id> -g <guid> -p public
osf contributor add -u <user-id> -g <guid> -c <contributor-id>
osf worker`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(dbCmd)
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}
