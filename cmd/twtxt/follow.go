package main

import (
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blackmichael/twtxt/internal/domain"
)

var followCmd = &cobra.Command{
	Use:   "follow NICK URL",
	Short: "Add a new source to your follow list",
	Args:  cobra.ExactArgs(2),
	RunE:  runFollow,
}

var unfollowCmd = &cobra.Command{
	Use:   "unfollow NICK",
	Short: "Remove an existing source from your follow list",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnfollow,
}

var followingCmd = &cobra.Command{
	Use:   "following",
	Short: "List the sources you follow",
	Args:  cobra.NoArgs,
	RunE:  runFollowing,
}

var (
	followingCheck     bool
	followingPorcelain bool
)

func init() {
	followingCmd.Flags().BoolVar(&followingCheck, "check", false, "Check whether each source is reachable")
	followingCmd.Flags().BoolVar(&followingPorcelain, "porcelain", false, "Machine-readable output")
	rootCmd.AddCommand(followCmd, unfollowCmd, followingCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
	nick, url := args[0], args[1]

	a, err := loadApp(cmd, true)
	if err != nil {
		return err
	}

	if current, ok := a.store.Following()[nick]; ok && current == url {
		fmt.Fprintf(a.out, "You're already following %s.\n", nick)
		return nil
	}

	if a.cfg.Twtxt.CheckFollowing {
		code, err := a.fetcher().Status(cmd.Context(), url)
		if err != nil || code != http.StatusOK {
			a.logger.Warn("source looks unreachable", "nick", nick, "url", url, "status", code, "error", err)
		}
	}

	if err := a.store.Follow(nick, url); err != nil {
		return err
	}
	if err := a.store.Save(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "You're now following %s.\n", nick)
	return nil
}

func runUnfollow(cmd *cobra.Command, args []string) error {
	nick := args[0]

	a, err := loadApp(cmd, false)
	if err != nil {
		return err
	}

	removed, err := a.store.Unfollow(nick)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(a.out, "You're not following %s.\n", nick)
		return nil
	}
	if err := a.store.Save(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "You've unfollowed %s.\n", nick)
	return nil
}

func runFollowing(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd, false)
	if err != nil {
		return err
	}

	check := a.cfg.Twtxt.CheckFollowing
	if cmd.Flags().Changed("check") {
		check = followingCheck
	}
	porcelain := a.cfg.Twtxt.Porcelain
	if cmd.Flags().Changed("porcelain") {
		porcelain = followingPorcelain
	}

	svc := domain.NewTimelineService(a.fetcher(), nil, a.store, nil, domain.ServiceOptions{}, a.logger)

	var statuses []domain.SourceStatus
	if check {
		statuses = svc.CheckSources(cmd.Context())
	} else {
		for _, src := range svc.Sources() {
			statuses = append(statuses, domain.SourceStatus{Source: src})
		}
	}

	if porcelain {
		for _, st := range statuses {
			fmt.Fprintf(a.out, "%s\t%s\n", st.Source.Nick, st.Source.URL)
		}
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t@ %s", st.Source.Nick, st.Source.URL)
		if check {
			fmt.Fprintf(tw, "\t%s", statusLabel(st))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func statusLabel(st domain.SourceStatus) string {
	switch {
	case st.Err != nil:
		return "[unreachable]"
	case st.StatusCode == http.StatusOK:
		return "[ok]"
	default:
		return fmt.Sprintf("[%d %s]", st.StatusCode, http.StatusText(st.StatusCode))
	}
}
