package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/kakao-go/internal/kakao"
)

func newStoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "story",
		Short: "Read and publish KakaoStory posts",
	}

	cmd.AddCommand(newStoryProfileCmd())
	cmd.AddCommand(newStoryListCmd())
	cmd.AddCommand(newStoryGetCmd())
	cmd.AddCommand(newStoryNoteCmd())
	cmd.AddCommand(newStoryLinkCmd())
	cmd.AddCommand(newStoryPhotoCmd())
	cmd.AddCommand(newStoryDeleteCmd())

	return cmd
}

// postFlags are the options shared by the posting subcommands.
type postFlags struct {
	permission string
	noShare    bool
}

func (f *postFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.permission, "permission", "A", "audience: A (public), F (friends), M (only me)")
	cmd.Flags().BoolVar(&f.noShare, "no-share", false, "disallow sharing of the post")
}

func (f *postFlags) options() (kakao.PostOptions, error) {
	p := kakao.Permission(f.permission)

	switch p {
	case kakao.PermissionPublic, kakao.PermissionFriends, kakao.PermissionOnlyMe:
	default:
		return kakao.PostOptions{}, fmt.Errorf("invalid --permission %q: want A, F, or M", f.permission)
	}

	return kakao.PostOptions{Permission: p, DisableShare: f.noShare}, nil
}

func newStoryProfileCmd() *cobra.Command {
	var secure bool

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the KakaoStory profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSDK(cmd, func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				h, err := sdk.Service.StoryProfile(secure, nil)
				if err != nil {
					return err
				}

				p, err := h.Wait(ctx)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Stdout, p)
				}

				fmt.Fprintf(cc.Stdout, "Nickname:  %s\n", p.Nickname)

				if p.Permalink != "" {
					fmt.Fprintf(cc.Stdout, "Permalink: %s\n", p.Permalink)
				}

				if p.Birthday != "" {
					fmt.Fprintf(cc.Stdout, "Birthday:  %s (%s)\n", p.Birthday, p.BirthdayType)
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&secure, "secure", false, "request https image URLs")

	return cmd
}

func newStoryListCmd() *cobra.Command {
	var lastID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your stories, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSDK(cmd, func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				h, err := sdk.Service.MyStories(lastID, nil)
				if err != nil {
					return err
				}

				stories, err := h.Wait(ctx)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Stdout, stories)
				}

				printStories(cc.Stdout, stories, time.Now())

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&lastID, "after", "", "list stories older than this story ID")

	return cmd
}

func printStories(w io.Writer, stories []kakao.MyStory, now time.Time) {
	if len(stories) == 0 {
		fmt.Fprintln(w, "No stories.")

		return
	}

	rows := make([][]string, 0, len(stories))
	for i := range stories {
		s := &stories[i]
		rows = append(rows, []string{
			s.ID,
			s.Type().String(),
			storyTime(s.CreatedAt, now),
			strconv.Itoa(s.LikeCount),
			strconv.Itoa(s.CommentCount),
			truncate(s.Content, 40),
		})
	}

	printTable(w, []string{"ID", "TYPE", "CREATED", "LIKES", "COMMENTS", "CONTENT"}, rows)
}

// storyTime reformats the server timestamp, passing through values it
// cannot parse.
func storyTime(raw string, now time.Time) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}

	return formatTime(t.Local(), now)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}

func newStoryGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSDK(cmd, func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				h, err := sdk.Service.MyStory(args[0], nil)
				if err != nil {
					return err
				}

				s, err := h.Wait(ctx)
				if err != nil {
					return err
				}

				return printStory(cc, s)
			})
		},
	}
}

func printStory(cc *CLIContext, s *kakao.MyStory) error {
	if cc.Flags.JSON {
		return printJSON(cc.Stdout, s)
	}

	fmt.Fprintf(cc.Stdout, "ID:      %s\n", s.ID)
	fmt.Fprintf(cc.Stdout, "Type:    %s\n", s.Type())

	if s.URL != "" {
		fmt.Fprintf(cc.Stdout, "URL:     %s\n", s.URL)
	}

	if s.Content != "" {
		fmt.Fprintf(cc.Stdout, "Content: %s\n", s.Content)
	}

	return nil
}

func newStoryNoteCmd() *cobra.Command {
	var pf postFlags

	cmd := &cobra.Command{
		Use:   "note TEXT",
		Short: "Post a text story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := pf.options()
			if err != nil {
				return err
			}

			return withSDK(cmd, func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				h, err := sdk.Service.PostNote(args[0], opts, nil)
				if err != nil {
					return err
				}

				return waitPosted(ctx, cc, h.Wait)
			})
		},
	}

	pf.register(cmd)

	return cmd
}

func newStoryLinkCmd() *cobra.Command {
	var (
		pf      postFlags
		content string
	)

	cmd := &cobra.Command{
		Use:   "link URL",
		Short: "Scrape a web page and post it as a link story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := pf.options()
			if err != nil {
				return err
			}

			return withSDK(cmd, func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				lh, err := sdk.Service.LinkInfo(args[0], nil)
				if err != nil {
					return err
				}

				info, err := lh.Wait(ctx)
				if err != nil {
					return fmt.Errorf("scraping %s: %w", args[0], err)
				}

				h, err := sdk.Service.PostLink(info, content, opts, nil)
				if err != nil {
					return err
				}

				return waitPosted(ctx, cc, h.Wait)
			})
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVar(&content, "content", "", "text to post with the link")

	return cmd
}

func newStoryPhotoCmd() *cobra.Command {
	var (
		pf      postFlags
		content string
	)

	cmd := &cobra.Command{
		Use:   "photo FILE...",
		Short: "Upload images and post them as a photo story",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := pf.options()
			if err != nil {
				return err
			}

			return withSDK(cmd, func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				h, err := sdk.Service.PostPhoto(args, content, opts, nil)
				if err != nil {
					return err
				}

				return waitPosted(ctx, cc, h.Wait)
			})
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVar(&content, "content", "", "text to post with the images")

	return cmd
}

func waitPosted(ctx context.Context, cc *CLIContext, wait func(context.Context) (*kakao.MyStory, error)) error {
	s, err := wait(ctx)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, s)
	}

	fmt.Fprintln(cc.Stdout, s.ID)

	return nil
}

func newStoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one of your stories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSDK(cmd, func(ctx context.Context, cc *CLIContext, sdk *kakao.SDK) error {
				h, err := sdk.Service.DeleteMyStory(args[0], nil)
				if err != nil {
					return err
				}

				if _, err := h.Wait(ctx); err != nil {
					return err
				}

				cc.Statusf("Deleted %s.\n", args[0])

				return nil
			})
		},
	}
}
