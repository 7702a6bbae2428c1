package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cctvbot/internal/storage"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
	bold     = color.New(color.Bold)
)

func statusCmd(cfgPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show violation counts and subscribers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(*cfgPath, func(ctx context.Context, s *session) error {
				if err := s.mon.Registry().Resync(ctx); err != nil {
					return fmt.Errorf("load subscribers: %w", err)
				}
				st, err := s.mon.Status(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, st)
				}
				bold.Fprintln(out, "Violation monitoring status")
				fmt.Fprintf(out, "  total:       %d\n", st.TotalCount)
				fmt.Fprintf(out, "  unresolved:  %s\n", color.YellowString("%d", st.UnresolvedCount))
				fmt.Fprintf(out, "  resolved:    %s\n", color.GreenString("%d", st.ResolvedCount))
				fmt.Fprintf(out, "  resolution:  %.1f%%\n", st.ResolutionRatePercent)
				fmt.Fprintf(out, "  subscribers: %d\n", st.SubscriberCount)
				if url := strings.TrimRight(s.cfg.Monitor.DashboardURL, "/"); url != "" {
					fmt.Fprintf(out, "  dashboard:   %s\n", url)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

func subscribersCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscribers",
		Aliases: []string{"subs"},
		Short:   "Manage alert subscribers",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List subscribers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(*cfgPath, func(ctx context.Context, s *session) error {
				subs, err := s.store.ListSubscribers(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				n := 0
				for _, sub := range subs {
					if !sub.Active && !all {
						continue
					}
					mark := okMark
					if !sub.Active {
						mark = failMark
					}
					fmt.Fprintf(out, "%s %s  %s\n", mark, sub.Address, sub.CreatedAt.Format("2006-01-02 15:04"))
					n++
				}
				if n == 0 {
					fmt.Fprintln(out, "no subscribers")
				}
				return nil
			})
		},
	}
	list.Flags().BoolVarP(&all, "all", "a", false, "include deactivated subscribers")

	add := &cobra.Command{
		Use:   "add <address>...",
		Short: "Register chat addresses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(*cfgPath, func(ctx context.Context, s *session) error {
				return addAddresses(ctx, s, cmd.OutOrStdout(), "subscriber.add", args)
			})
		},
	}

	remove := &cobra.Command{
		Use:     "remove <address>...",
		Aliases: []string{"rm"},
		Short:   "Deactivate chat addresses",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(*cfgPath, func(ctx context.Context, s *session) error {
				out := cmd.OutOrStdout()
				for _, addr := range args {
					ok, err := s.store.DeactivateAddress(ctx, addr)
					if err != nil {
						return fmt.Errorf("deactivate %s: %w", addr, err)
					}
					s.audit(ctx, "subscriber.remove", addr, ok, "")
					if ok {
						fmt.Fprintf(out, "%s %s removed\n", okMark, addr)
					} else {
						fmt.Fprintf(out, "%s %s was not subscribed\n", failMark, addr)
					}
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}

func seedDefaultsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-defaults",
		Short: "Register the default_subscribers from the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(*cfgPath, func(ctx context.Context, s *session) error {
				if len(s.cfg.DefaultSubscribers) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "config has no default_subscribers")
					return nil
				}
				return addAddresses(ctx, s, cmd.OutOrStdout(), "subscriber.seed", s.cfg.DefaultSubscribers)
			})
		},
	}
}

func addAddresses(ctx context.Context, s *session, out io.Writer, action string, addrs []string) error {
	var bad []string
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if !storage.ValidAddress(addr) {
			fmt.Fprintf(out, "%s %s is not a valid address (8-15 digits)\n", failMark, addr)
			bad = append(bad, addr)
			continue
		}
		created, err := s.store.AddAddress(ctx, addr)
		if err != nil {
			return fmt.Errorf("add %s: %w", addr, err)
		}
		s.audit(ctx, action, addr, true, "")
		if created {
			fmt.Fprintf(out, "%s %s added\n", okMark, addr)
		} else {
			fmt.Fprintf(out, "%s %s already active\n", okMark, addr)
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("invalid addresses: %s", strings.Join(bad, ", "))
	}
	return nil
}

func demoCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Insert a synthetic violation record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(*cfgPath, func(ctx context.Context, s *session) error {
				v, err := s.mon.InsertDemoRecord(ctx)
				s.audit(ctx, "record.demo", v.ID, err == nil, "")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s inserted %s (%s, %s)\n", okMark, v.ID, v.FactoryArea, v.Timestamp)
				return nil
			})
		},
	}
}

func resolveCmd(cfgPath *string) *cobra.Command {
	var reopen bool
	cmd := &cobra.Command{
		Use:   "resolve <record-id>",
		Short: "Mark a violation resolved (or reopen it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(*cfgPath, func(ctx context.Context, s *session) error {
				id := strings.TrimSpace(args[0])
				ok, err := s.mon.UpdateResolved(ctx, id, !reopen)
				if err != nil {
					return err
				}
				action := "record.resolve"
				if reopen {
					action = "record.reopen"
				}
				s.audit(ctx, action, id, ok, "")
				if !ok {
					return fmt.Errorf("record %s not found", id)
				}
				state := "resolved"
				if reopen {
					state = "unresolved"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s marked %s\n", okMark, id, state)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reopen, "reopen", false, "mark the record unresolved instead")
	return cmd
}

func importCmd(cfgPath *string) *cobra.Command {
	var header bool
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import violation records from a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withSession(*cfgPath, func(ctx context.Context, s *session) error {
				rep, err := storage.ImportCSV(ctx, s.store, f, storage.ImportOptions{
					HasHeader: header,
					Timezone:  s.cfg.Storage.Timezone,
				})
				s.audit(ctx, "record.import", args[0], err == nil, fmt.Sprintf("imported=%d skipped=%d", rep.Imported, rep.Skipped))
				out := cmd.OutOrStdout()
				for _, e := range rep.Errors {
					fmt.Fprintf(out, "%s %s\n", failMark, e)
				}
				fmt.Fprintf(out, "imported %s, skipped %d\n", color.GreenString("%d", rep.Imported), rep.Skipped)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&header, "header", true, "first row is a header")
	return cmd
}
