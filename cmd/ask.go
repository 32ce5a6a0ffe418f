package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"findost/internal/domain"
	"findost/internal/usecase"
)

var (
	askProfilePath string
	askUserID      string
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one message through the relay and print the reply",
	Example: `  findost ask "How much should I keep as an emergency fund?"
  findost ask --profile me.json "Should I prepay my education loan?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askProfilePath, "profile", "p", "", "JSON file holding a profiles row")
	askCmd.Flags().StringVar(&askUserID, "user", "", "user id for stored history")
}

func runAsk(cmd *cobra.Command, args []string) error {
	profile, err := readProfile(askProfilePath)
	if err != nil {
		return err
	}

	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.relay.Reply(cmd.Context(), usecase.ReplyInput{
		Message: strings.Join(args, " "),
		Profile: profile,
		UserID:  askUserID,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Reply)
	return nil
}

func readProfile(path string) (domain.Profile, error) {
	var p domain.Profile
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse profile: %w", err)
	}
	return p, nil
}
