package main

import (
	"fmt"
	"net/url"
	"os"

	cl "stockticker/internal/cli"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
)

func newInviteCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "invite [game]",
		Short: "Print a QR code other players can scan to find the game",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID := ""
			if len(args) > 0 {
				gameID = args[0]
			} else {
				sess, err := cl.RequireGame()
				if err != nil {
					return err
				}
				gameID = sess.GameID
			}
			link := inviteLink(*apiBase, gameID)

			qrterminal.GenerateWithConfig(link, qrterminal.Config{
				Level:     qrterminal.L,
				Writer:    os.Stdout,
				BlackChar: qrterminal.BLACK,
				WhiteChar: qrterminal.WHITE,
				QuietZone: 1,
			})
			fmt.Println(link)
			printInfo(fmt.Sprintf("Or run: stk --api %s join %s", *apiBase, gameID))
			return nil
		},
	}
}

func inviteLink(apiBase, gameID string) string {
	return apiBase + "/v1/games/" + url.PathEscape(gameID)
}
