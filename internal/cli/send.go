package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danish296/Code-Drop/internal/config"
	"github.com/danish296/Code-Drop/internal/files"
	"github.com/danish296/Code-Drop/internal/transfer"
	"github.com/danish296/Code-Drop/internal/ui"
)

var (
	flagDomain    string
	flagServerURL string
	flagSTUN      string
	flagTURN      string
	flagTURNUser  string
	flagTURNPass  string
)

var sendCmd = &cobra.Command{
	Use:     "send <file>...",
	Aliases: []string{"s"},
	Short:   "Send files to a receiver",
	Long: `Send files directly to a receiver over WebRTC.

Examples:
  codedrop send file1.txt file2.pdf
  codedrop send --domain drop.example.com file.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFiles(args)
	},
}

func sendFiles(paths []string) error {
	stopSpinner := ui.RunSpinner("Validating files...")
	defer stopSpinner()
	fileInfos, err := files.Validate(paths)
	if err != nil {
		return err
	}
	stopSpinner()

	displayFileTable(fileInfos)

	cfg, err := LoadConfig(config.Options{
		Domain:     flagDomain,
		ServerURL:  flagServerURL,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	stopSpinner = ui.RunConnectionSpinner("Connecting to server...")
	defer stopSpinner()
	ctx, err := NewConnectionContext(cfg)
	if err != nil {
		return err
	}
	defer ctx.Close()
	stopSpinner()

	session := transfer.NewSenderSession(ctx.Client, ctx.Handler, cfg, fileInfos)
	defer session.Close()

	code, err := session.CreateRoom()
	if err != nil {
		return err
	}
	ui.RenderRoomInfo(code, cfg.RoomLink(code))

	fmt.Println()
	stopSpinner = ui.RunWaitingSpinner("Waiting for receiver to join...")
	defer stopSpinner()
	if err := session.WaitForPeer(); err != nil {
		return err
	}
	stopSpinner()

	stopSpinner = ui.RunConnectionSpinner("Negotiating connection...")
	defer stopSpinner()
	if err := session.Connect(); err != nil {
		return err
	}
	stopSpinner()

	names := make([]string, len(fileInfos))
	sizes := make([]int64, len(fileInfos))
	var total int64
	for i, f := range fileInfos {
		names[i] = f.Name
		sizes[i] = f.Size
		total += f.Size
	}

	progress := ui.NewTransferProgress(names, sizes)
	session.Progress = progress.Update
	progress.Start()

	start := time.Now()
	err = session.Transfer()
	progress.Finish()
	if err != nil {
		return err
	}

	displaySummary(len(fileInfos), total, time.Since(start))
	return nil
}

func displayFileTable(fileInfos []files.FileInfo) {
	items := make([]ui.FileTableItem, len(fileInfos))
	for i, f := range fileInfos {
		items[i] = ui.FileTableItem{Index: i + 1, Name: f.Name, Size: f.Size, Type: f.Type}
	}
	fmt.Println()
	ui.RenderFileTable(items)
}

func displaySummary(count int, total int64, elapsed time.Duration) {
	speed := ""
	if secs := elapsed.Seconds(); secs > 0 {
		speed = ui.FormatSpeed(float64(total) / secs)
	}

	fmt.Println()
	ui.RenderTransferSummary(ui.TransferSummary{
		Status:    "Complete",
		Files:     count,
		TotalSize: ui.FormatSize(total),
		Duration:  ui.FormatDuration(elapsed),
		Speed:     speed,
	})
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&flagDomain, "domain", "d", "", "Custom relay domain")
	sendCmd.Flags().StringVar(&flagServerURL, "server", "", "Full websocket URL of the relay")
	sendCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	sendCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	sendCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	sendCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
}
