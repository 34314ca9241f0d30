package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/baechuer/seatwatch/internal/bootstrap"
	"github.com/baechuer/seatwatch/internal/config"
	"github.com/baechuer/seatwatch/internal/domain"
)

// requestLister is the read/clear surface of the registry used by the CLI.
type requestLister interface {
	List(ctx context.Context, owner string) []domain.TrackingRequest
	ListAll(ctx context.Context) []domain.TrackingRequest
	Clear(ctx context.Context, owner string) (int, error)
	ClearAll(ctx context.Context) (int, error)
}

func requestsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Inspect or clear tracking requests in the state file",
	}
	cmd.AddCommand(requestsListCommand())
	cmd.AddCommand(requestsClearCommand())
	return cmd
}

func openCore(cmd *cobra.Command) (*bootstrap.Core, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	core, err := bootstrap.NewCore(cmd.Context(), cfg, zlog.Logger)
	if err != nil {
		return nil, nil, err
	}
	return core, cfg, nil
}

func requestsListCommand() *cobra.Command {
	var user string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracking requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, cfg, err := openCore(cmd)
			if err != nil {
				return err
			}
			defer core.Close()

			reqs := selectRequests(cmd.Context(), core.Registry, user)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), reqs)
			}
			writeTable(cmd.OutOrStdout(), reqs)
			fmt.Fprintf(cmd.OutOrStdout(), "\nChecked every %s\n", cfg.CheckInterval)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "only show requests owned by this user id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func selectRequests(ctx context.Context, reg requestLister, user string) []domain.TrackingRequest {
	if user != "" {
		return reg.List(ctx, user)
	}
	return reg.ListAll(ctx)
}

type requestRow struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Target   string `json:"target"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Term     string `json:"term"`
	Seats    *int   `json:"last_known_seats"`
}

func toRows(reqs []domain.TrackingRequest) []requestRow {
	rows := make([]requestRow, 0, len(reqs))
	for i, r := range reqs {
		rows = append(rows, requestRow{
			Index:    i,
			ID:       r.ID,
			Type:     string(r.Kind),
			Target:   r.Label(),
			UserID:   r.OwnerUserID,
			Username: r.OwnerDisplayName,
			Term:     r.Term,
			Seats:    r.LastKnownSeatsOpen,
		})
	}
	return rows
}

func writeJSON(w io.Writer, reqs []domain.TrackingRequest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toRows(reqs))
}

func writeTable(w io.Writer, reqs []domain.TrackingRequest) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, "No tracking requests found.")
		return
	}
	fmt.Fprintf(w, "Active Tracking Requests (%d):\n", len(reqs))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tTARGET\tUSER\tTERM\tSEATS")
	for _, row := range toRows(reqs) {
		seats := "-"
		if row.Seats != nil {
			seats = fmt.Sprint(*row.Seats)
		}
		user := row.Username
		if user == "" {
			user = row.UserID
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", row.Index, row.Type, row.Target, user, row.Term, seats)
	}
	_ = tw.Flush()
}

func requestsClearCommand() *cobra.Command {
	var user string
	var all, yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove tracking requests for one user (--user) or everyone (--all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (user == "") == !all {
				return fmt.Errorf("pass exactly one of --user or --all")
			}
			core, _, err := openCore(cmd)
			if err != nil {
				return err
			}
			defer core.Close()

			return clearRequests(cmd.Context(), core.Registry, user, yes, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "clear requests owned by this user id")
	cmd.Flags().BoolVar(&all, "all", false, "clear every request")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// clearRequests removes one user's requests, or everything when user is empty.
// Clearing everything asks for a typed "yes" unless skipConfirm is set.
func clearRequests(ctx context.Context, reg requestLister, user string, skipConfirm bool, in io.Reader, out io.Writer) error {
	if user != "" {
		n, err := reg.Clear(ctx, user)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Cleared %d tracking request(s) for %s\n", n, user)
		return nil
	}

	total := len(reg.ListAll(ctx))
	if total == 0 {
		fmt.Fprintln(out, "No tracking requests to clear.")
		return nil
	}

	if !skipConfirm {
		fmt.Fprintf(out, "WARNING: This will remove ALL %d tracking requests!\nType 'yes' to confirm: ", total)
		line, _ := bufio.NewReader(in).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(line)) != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	n, err := reg.ClearAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Cleared all %d tracking requests\n", n)
	return nil
}
