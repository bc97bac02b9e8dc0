// Command chatwatch logs in as one portal user and keeps the chat preview
// list and badge count live from the push channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mbeoliero/kit/log"
	"github.com/spf13/cobra"

	"github.com/mbeoliero/jobchat/sdk"
	"github.com/mbeoliero/jobchat/sdk/chatsync"
)

type watchFlags struct {
	api        string
	ws         string
	userId     string
	password   string
	platformId int
}

var flags watchFlags

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chatwatch",
	Short: "Headless jobchat client",
	Long: `chatwatch signs in to a jobchat backend and follows the user's chats.

Examples:
  chatwatch watch --user em__1 --password secret
  chatwatch send --user em__1 --password secret --to js__2 --text "hello"`,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log previews and badge changes until interrupted",
	RunE:  runWatch,
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one message and print the conversation",
	RunE:  runSend,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sendCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.api, "api", envOr("JOBCHAT_API", "http://localhost:8080"), "REST base url")
	pf.StringVar(&flags.ws, "ws", envOr("JOBCHAT_WS", ""), "push channel url, derived from --api when empty")
	pf.StringVar(&flags.userId, "user", os.Getenv("JOBCHAT_USER"), "chat user id")
	pf.StringVar(&flags.password, "password", os.Getenv("JOBCHAT_PASSWORD"), "password")
	pf.IntVar(&flags.platformId, "platform", sdk.PlatformIdWeb, "platform id")

	sendCmd.Flags().String("to", "", "counterpart user id")
	sendCmd.Flags().String("text", "", "message content")
	_ = sendCmd.MarkFlagRequired("to")
	_ = sendCmd.MarkFlagRequired("text")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func wsEndpoint() string {
	if flags.ws != "" {
		return flags.ws
	}
	base := strings.TrimSuffix(flags.api, "/")
	base = strings.Replace(base, "http", "ws", 1)
	return base + "/ws"
}

// connect logs in and starts a session over a fresh push channel
func connect(ctx context.Context, opts ...chatsync.Option) (*chatsync.Session, *sdk.Client, error) {
	client, err := sdk.NewClient(flags.api)
	if err != nil {
		return nil, nil, err
	}
	login, err := client.LoginWithUserId(ctx, flags.userId, flags.password, flags.platformId)
	if err != nil {
		return nil, nil, fmt.Errorf("login: %w", err)
	}
	log.CtxInfo(ctx, "logged in: user_id=%s, platform=%s", flags.userId, sdk.PlatformIdToName(flags.platformId))

	conn := chatsync.NewConnection(wsEndpoint(), flags.userId, login.Token, chatsync.WithPlatformId(flags.platformId))
	conn.Start(ctx)

	session, err := chatsync.NewSession(flags.userId, chatsync.NewRESTBackend(client), conn, opts...)
	// the session holds its own reference from here on
	_ = conn.Release()
	if err != nil {
		return nil, nil, err
	}
	if err := session.Start(ctx); err != nil {
		log.CtxWarn(ctx, "initial sync incomplete: error=%v", err)
	}
	return session, client, nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session, client, err := connect(ctx,
		chatsync.WithDegradedHandler(func(topic string, err error) {
			log.CtxWarn(ctx, "live updates paused: topic=%s, error=%v", topic, err)
		}),
		chatsync.WithKickedHandler(func(err error) {
			log.CtxWarn(ctx, "session revoked: error=%v", err)
			cancel()
		}),
	)
	if err != nil {
		return err
	}

	// names are looked up once; conversations started later show raw ids
	names := counterpartNames(ctx, client, session)
	session.OnBadgeChange(func(badge int64) {
		log.CtxInfo(ctx, "badge changed: count=%d", badge)
		logPreviews(ctx, session, names)
	})
	logPreviews(ctx, session, names)

	<-ctx.Done()

	shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := client.Logout(shutdown); err != nil {
		log.CtxDebug(shutdown, "logout failed: error=%v", err)
	}
	return session.Close(shutdown)
}

func runSend(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	to, _ := cmd.Flags().GetString("to")
	text, _ := cmd.Flags().GetString("text")

	session, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer session.Close(context.Background())

	view, err := session.Open(ctx, to)
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	defer view.Close(context.Background())

	if _, err := view.Send(ctx, text); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	for _, msg := range view.Messages() {
		fmt.Printf("%s  %-12s %s\n", time.UnixMilli(msg.CreatedAt).Format(time.DateTime), msg.SenderId, msg.Content)
	}
	return nil
}

func counterpartNames(ctx context.Context, client *sdk.Client, session *chatsync.Session) map[string]string {
	previews := session.Previews()
	ids := make([]string, 0, len(previews))
	for _, p := range previews {
		ids = append(ids, p.CounterpartId)
	}
	names := make(map[string]string, len(ids))
	profiles, err := client.Profiles(ctx, ids)
	if err != nil {
		log.CtxDebug(ctx, "profile lookup failed: error=%v", err)
		return names
	}
	for id, u := range profiles {
		names[id] = u.Nickname
	}
	return names
}

func logPreviews(ctx context.Context, session *chatsync.Session, names map[string]string) {
	for _, p := range session.Previews() {
		name, ok := names[p.CounterpartId]
		if !ok {
			name = p.CounterpartId
		}
		log.CtxInfo(ctx, "chat: counterpart=%s, unread=%d, last=%q", name, p.UnreadCount, p.LastMessage)
	}
}
