package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/preview-capture/internal/redirect"
)

// newRedirectPageCmd creates the `redirect-page` command, which renders a redirect page to stdout.
func newRedirectPageCmd(a *app) *cobra.Command {
	var title, description string

	cmd := &cobra.Command{
		Use:   "redirect-page <destination-url> <preview-url>",
		Short: "Prints the HTML redirect page for a stored preview",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			page := redirect.Page{
				Title:          title,
				PreviewURL:     args[1],
				DestinationURL: args[0],
				Description:    description,
			}
			if page.Title == "" {
				page.Title = redirect.GuessTitle(page.DestinationURL)
			}

			html, err := redirect.Render(page)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(html))
			return err
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "page title (guessed from the destination when empty)")
	cmd.Flags().StringVar(&description, "description", "", "page description")
	return cmd
}
