package cli

import (
	"errors"
	"fmt"
	"os"

	"devicegateway/adb"
	"devicegateway/imaging"
	"devicegateway/service"

	"github.com/spf13/cobra"
)

var (
	screenshotOutputPath string
	screenshotFormat     string
	screenshotQuality    int
)

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Capture one screenshot from the configured device",
	Long:  `Connects to the configured device, captures the screen once and writes the encoded image to a file, or to stdout with -o -.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format := cfg.Capture.Format
		if cmd.Flags().Changed("format") {
			format = screenshotFormat
		}
		quality := cfg.Capture.Quality
		if cmd.Flags().Changed("quality") {
			quality = screenshotQuality
		}
		encoder, err := imaging.NewEncoder(format, quality)
		if err != nil {
			return err
		}

		client := adb.NewClient(cfg.ADB.ServerAddr, cfg.ADB.Candidates)
		if err := client.EnsureServerRunning(ctx); err != nil {
			return err
		}

		session := service.NewSession(client, cfg.SessionOptions())
		if !session.Connect(ctx) || !session.IsConnected() {
			return errors.New("device not connected")
		}

		frame, err := session.CaptureFrame(ctx)
		if err != nil {
			return fmt.Errorf("error capturing screenshot: %w", err)
		}
		data, err := encoder.Encode(frame.Image)
		if err != nil {
			return err
		}

		if screenshotOutputPath == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}

		path := screenshotOutputPath
		if path == "" {
			path = "screenshot." + encoder.Extension()
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write screenshot: %w", err)
		}
		return printJson(map[string]any{
			"path":   path,
			"width":  frame.Width,
			"height": frame.Height,
			"bytes":  len(data),
		})
	},
}

func init() {
	rootCmd.AddCommand(screenshotCmd)

	screenshotCmd.Flags().StringVarP(&screenshotOutputPath, "output", "o", "", "Output file path (e.g., screen.png, or '-' for stdout)")
	screenshotCmd.Flags().StringVarP(&screenshotFormat, "format", "f", "png", "Output format (png or jpeg)")
	screenshotCmd.Flags().IntVarP(&screenshotQuality, "quality", "q", 90, "JPEG quality (1-100, only applies if format is jpeg)")
}
