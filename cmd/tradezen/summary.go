package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/veritasvoid/TradeZen/internal/journal"
	"github.com/veritasvoid/TradeZen/internal/session"
	"go.uber.org/zap"
)

func newSummaryCmd(configDir *string) *cobra.Command {
	var year int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the yearly dashboard as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configDir, terminalConsent(cmd.InOrStdin(), cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.signIn(ctx); err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
			if err := a.settings.Load(ctx); err != nil {
				a.log.Warn("Using local settings", zap.Error(err))
			}

			trades, err := a.workbook.ListTrades(ctx)
			if err != nil {
				return err
			}
			tags, err := a.workbook.ListTags(ctx)
			if err != nil {
				return err
			}

			d := journal.BuildDashboard(trades, tags, year, a.settings.StartingBalance())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "calendar year to summarize")
	return cmd
}

// terminalConsent asks the user to open the consent URL and paste back the
// address the provider redirected to, or just its code.
func terminalConsent(in io.Reader, out io.Writer) session.ConsentFunc {
	return func(ctx context.Context, authURL, state string) (string, error) {
		fmt.Fprintf(out, "Open this URL to allow access to your journal:\n\n  %s\n\nPaste the redirect URL or code: ", authURL)

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read authorization code: %w", err)
		}
		line = strings.TrimSpace(line)

		u, err := url.Parse(line)
		if err != nil || u.RawQuery == "" {
			return line, nil
		}
		q := u.Query()
		if e := q.Get("error"); e != "" {
			return "", fmt.Errorf("consent refused: %s", e)
		}
		if got := q.Get("state"); got != "" && got != state {
			return "", fmt.Errorf("state mismatch")
		}
		return q.Get("code"), nil
	}
}
