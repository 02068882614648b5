package cli

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danish296/Code-Drop/internal/config"
	"github.com/danish296/Code-Drop/internal/transfer"
	"github.com/danish296/Code-Drop/internal/ui"
)

var (
	flagReceiverDomain    string
	flagReceiverServerURL string
	flagReceiverSTUN      string
	flagReceiverTURN      string
	flagReceiverTURNUser  string
	flagReceiverTURNPass  string
	flagReceiverDir       string
)

var codePattern = regexp.MustCompile(`^\d{4}$`)

var receiveCmd = &cobra.Command{
	Use:     "receive <code|url>",
	Aliases: []string{"r"},
	Short:   "Receive files from a sender",
	Long: `Receive files directly from a sender over WebRTC.

Examples:
  codedrop receive 4821
  codedrop receive https://code-drop.onrender.com/r/4821
  codedrop receive 4821 --dir ~/Downloads`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return receiveFiles(code)
	},
}

func receiveFiles(code string) error {
	cfg, err := LoadConfig(config.Options{
		Domain:     flagReceiverDomain,
		ServerURL:  flagReceiverServerURL,
		STUNServer: flagReceiverSTUN,
		TURNServer: flagReceiverTURN,
		TURNUser:   flagReceiverTURNUser,
		TURNPass:   flagReceiverTURNPass,
	})
	if err != nil {
		return err
	}

	outDir := flagReceiverDir
	if outDir == "" {
		outDir = "."
	} else if err := os.MkdirAll(outDir, 0755); err != nil {
		return transfer.NewError("create output dir", err)
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	defer stopSpinner()
	ctx, err := NewConnectionContext(cfg)
	if err != nil {
		return err
	}
	defer ctx.Close()
	stopSpinner()

	session := transfer.NewReceiverSession(ctx.Client, ctx.Handler, cfg, outDir)
	defer session.Close()

	if err := session.Join(code); err != nil {
		return err
	}
	ui.PrintSuccessf("Joined room %s", code)

	stopSpinner = ui.RunConnectionSpinner("Negotiating connection...")
	defer stopSpinner()
	if err := session.Connect(); err != nil {
		return err
	}
	meta, err := session.AwaitMetadata()
	if err != nil {
		return err
	}
	stopSpinner()

	names := make([]string, len(meta))
	sizes := make([]int64, len(meta))
	var total int64
	for i, m := range meta {
		names[i] = m.Name
		sizes[i] = m.Size
		total += m.Size
	}

	progress := ui.NewTransferProgress(names, sizes)
	session.Progress = progress.Update
	progress.Start()

	start := time.Now()
	err = session.Receive()
	progress.Finish()
	if err != nil {
		return err
	}

	for _, path := range session.SavedPaths() {
		ui.PrintSuccessf("Saved %s", path)
	}
	displaySummary(len(meta), total, time.Since(start))
	return nil
}

// parseRoomInput accepts either a bare four-digit code or a room link.
func parseRoomInput(input string) (string, error) {
	if codePattern.MatchString(input) {
		return input, nil
	}

	if strings.Contains(input, "://") || strings.Contains(input, ".") {
		code, err := extractCodeFromURL(input)
		if err != nil {
			return "", err
		}
		ui.PrintSuccessf("Extracted room code: %s", code)
		return code, nil
	}

	return "", fmt.Errorf("invalid room code %q: expected four digits or a room link", input)
}

func extractCodeFromURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", transfer.NewError("parse URL", err)
	}

	parts := strings.Split(strings.TrimSuffix(parsed.Path, "/"), "/")
	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && codePattern.MatchString(parts[i+1]) {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room code from URL: %s", raw)
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().StringVar(&flagReceiverDomain, "domain", "", "Custom relay domain")
	receiveCmd.Flags().StringVar(&flagReceiverServerURL, "server", "", "Full websocket URL of the relay")
	receiveCmd.Flags().StringVarP(&flagReceiverSTUN, "stun", "s", "", "Custom STUN server")
	receiveCmd.Flags().StringVarP(&flagReceiverTURN, "turn", "t", "", "Custom TURN server")
	receiveCmd.Flags().StringVar(&flagReceiverTURNUser, "turn-user", "", "TURN username")
	receiveCmd.Flags().StringVar(&flagReceiverTURNPass, "turn-pass", "", "TURN password")
	receiveCmd.Flags().StringVarP(&flagReceiverDir, "dir", "d", "", "Directory to save received files")
}
