package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
	"github.com/GriffinCanCode/oneshot/internal/server"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Request a one-shot screen capture",
	Long: `Ask the server to capture the screen once. With --wait the command polls
for the resulting outcome and prints it.`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().Bool("wait", true, "Wait for the capture outcome")
	captureCmd.Flags().Duration("timeout", 30*time.Second, "How long to wait for the outcome")
	captureCmd.Flags().Duration("poll", 500*time.Millisecond, "Outcome polling interval")
}

func runCapture(cmd *cobra.Command, _ []string) error {
	wait, _ := cmd.Flags().GetBool("wait")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	poll, _ := cmd.Flags().GetDuration("poll")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var since int64
	if prev, err := fetchOutcome(ctx, serverURL); err == nil {
		since = prev.Timestamp
	}

	if err := requestCapture(ctx, serverURL); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Capture requested")
	if !wait {
		return nil
	}

	out, err := awaitOutcome(ctx, serverURL, since, poll)
	if err != nil {
		return err
	}
	printOutcome(cmd.OutOrStdout(), out)
	return nil
}

func requestCapture(ctx context.Context, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/capture", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "contact capture server")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return decodeError(resp)
	}
	return nil
}

// fetchOutcome returns the latest outcome; NOT_FOUND when none was written.
func fetchOutcome(ctx context.Context, base string) (server.OutcomeMessage, error) {
	var out server.OutcomeMessage
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/outcome", http.NoBody)
	if err != nil {
		return out, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return out, apperrors.Wrap(err, apperrors.CodeUnavailable, "contact capture server")
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return out, apperrors.New(apperrors.CodeNotFound, "no outcome recorded")
	}
	if resp.StatusCode != http.StatusOK {
		return out, decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, apperrors.Wrap(err, apperrors.CodeInternal, "decode outcome")
	}
	return out, nil
}

// awaitOutcome polls until an outcome newer than since appears.
func awaitOutcome(ctx context.Context, base string, since int64, poll time.Duration) (server.OutcomeMessage, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		out, err := fetchOutcome(ctx, base)
		if ctx.Err() != nil {
			return out, apperrors.Wrap(ctx.Err(), apperrors.CodeTimeout, "waiting for capture outcome")
		}
		if err == nil && out.Timestamp > since {
			return out, nil
		}
		if err != nil && !apperrors.IsCode(err, apperrors.CodeNotFound) {
			return out, err
		}
		select {
		case <-ctx.Done():
			return out, apperrors.Wrap(ctx.Err(), apperrors.CodeTimeout, "waiting for capture outcome")
		case <-ticker.C:
		}
	}
}

func decodeError(resp *http.Response) error {
	var msg server.ErrorMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil || msg.Message == "" {
		return apperrors.Newf(apperrors.CodeUnknown, "server returned %s", resp.Status)
	}
	return fmt.Errorf("%s: %s", msg.Code, msg.Message)
}

func printOutcome(w io.Writer, out server.OutcomeMessage) {
	ts := time.UnixMilli(out.Timestamp).Format("2006-01-02 15:04:05.000")
	if out.Success {
		fmt.Fprintf(w, "Saved %s (%s)\n", out.FileName, ts)
		return
	}
	fmt.Fprintf(w, "Failed: %s (%s)\n", out.Error, ts)
}
