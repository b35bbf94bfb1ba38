package main

import (
	"io"
	"os"

	"github.com/comicaholic/genai-studio/internal/apiclient"
	"github.com/comicaholic/genai-studio/internal/cli/output"
	"github.com/spf13/cobra"
)

const serverEnv = "MODELQ_SERVER"

type globalFlags struct {
	server string
	output string
}

type cli struct {
	out   io.Writer
	flags globalFlags
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "modelqctl",
		Short: "Manage the model download queue",
		Long: `modelqctl talks to a running modelq server and manages its download queue.

The server address is taken from --server, then $MODELQ_SERVER, then ` + apiclient.DefaultServer + `.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.flags.server, "server", "", "Server URL (default $"+serverEnv+")")
	root.PersistentFlags().StringVarP(&c.flags.output, "output", "o", "table", "Output format (table|json|yaml)")

	root.AddCommand(
		c.addCmd(),
		c.statusCmd(),
		c.listCmd(),
		c.cancelCmd(),
		c.removeCmd(),
		c.clearCmd(),
	)

	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(out)

	return root
}

func (c *cli) client() *apiclient.Client {
	server := c.flags.server
	if server == "" {
		server = os.Getenv(serverEnv)
	}

	return apiclient.NewClient(server)
}

func (c *cli) format() (output.Format, error) {
	return output.ParseFormat(c.flags.output)
}
