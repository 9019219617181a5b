// File: cmd/carelink/main.go
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/carelinkhq/carelink/internal/api"
	"github.com/carelinkhq/carelink/internal/capability"
	"github.com/carelinkhq/carelink/internal/config"
	"github.com/carelinkhq/carelink/internal/domain"
	"github.com/carelinkhq/carelink/internal/livechannel"
	"github.com/carelinkhq/carelink/internal/logging"
	"github.com/carelinkhq/carelink/internal/receipts"
	"github.com/carelinkhq/carelink/internal/session"
)

func main() {
	username := flag.String("user", "", "username")
	password := flag.String("pass", "", "password")
	register := flag.Bool("register", false, "create the account first")
	flag.Parse()

	if *username == "" || *password == "" {
		log.Fatal("both -user and -pass are required")
	}

	cfg := config.Load()
	logger := logging.New("carelink")
	ctx := context.Background()

	client := api.NewClient(cfg.APIBaseURL)
	creds := api.Credentials{Username: *username, Password: *password, DisplayName: *username}

	var (
		info *api.SessionInfo
		err  error
	)
	if *register {
		info, err = client.SignUp(ctx, creds)
	} else {
		info, err = client.SignIn(ctx, creds)
	}
	if err != nil {
		log.Fatalf("sign in failed: %v", err)
	}
	client.SetToken(info.Token)

	channel, err := livechannel.Dial(ctx, cfg.LiveChannelURL, info.Token, livechannel.DefaultRetryConfig(), logger)
	if err != nil {
		log.Fatalf("live channel dial failed: %v", err)
	}
	defer channel.Close()

	s := session.New(info.User, session.Config{
		MergeWindow:   cfg.MergeWindow,
		TypingTimeout: cfg.TypingTimeout,
	}, client, channel, logger)

	if err := s.Start(ctx); err != nil {
		log.Fatalf("session start failed: %v", err)
	}

	fmt.Printf("signed in as %s\n", info.User.DisplayName)
	repl(ctx, s)
}

func repl(ctx context.Context, s *session.Session) {
	perms := capability.Resolve(s.User(), capability.Scope{})
	fmt.Println("commands: threads | open <thread-id> | close | send <text> | new <user-id,...> <text> | broadcast <name> [text] | quit")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")

		switch cmd {
		case "threads":
			for _, t := range s.Threads.List() {
				marker := " "
				if t.UnreadCount > 0 {
					marker = fmt.Sprintf("(%d)", t.UnreadCount)
				}
				fmt.Printf("%s %s [%s] %s\n", marker, t.ID, t.Type, t.LastMessagePreview)
			}

		case "open":
			msgs, err := s.OpenThread(ctx, rest, false)
			if err != nil {
				fmt.Println("open failed:", err)
				continue
			}
			thread, _ := s.Threads.Get(rest)
			for _, m := range msgs {
				fmt.Printf("%s %s: %s\n", m.CreatedAt.Format("15:04"), m.SenderID, m.Body)
			}
			// Read state for the latest own message, the way the thread view
			// annotates it.
			if len(msgs) > 0 {
				last := msgs[len(msgs)-1]
				if entries := receipts.ForMessage(last, thread, s.User().ID); entries != nil {
					if receipts.IsAllRead(last, thread) {
						fmt.Println("  read by everyone")
					} else {
						for _, e := range entries {
							if e.HasRead {
								fmt.Printf("  read by %s at %s\n", e.Participant.DisplayName, e.ReadAt.Format("15:04"))
							}
						}
					}
				}
			}
			if label := s.TypingLabel(); label != "" {
				fmt.Println(label)
			}

		case "close":
			s.CloseThread()

		case "send":
			if _, err := s.SendMessage(rest); err != nil {
				fmt.Println("send failed:", err)
			}

		case "new":
			if !perms.Has(capability.PermMessageGeneral) {
				fmt.Println("your role cannot start conversations")
				continue
			}
			ids, text, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Println("usage: new <user-id,...> <text>")
				continue
			}
			s.StartConversation(strings.Split(ids, ","), domain.ThreadTypeGeneral, "", "", nil)
			thread, err := s.CommitConversation(ctx, text)
			if err != nil {
				fmt.Println("compose failed:", err)
				continue
			}
			fmt.Println("conversation:", thread.ID)

		case "broadcast":
			if !perms.Has(capability.PermStartBroadcast) {
				fmt.Println("your role cannot start broadcasts")
				continue
			}
			name, text, _ := strings.Cut(rest, " ")
			if name == "" {
				fmt.Println("usage: broadcast <name> [text]")
				continue
			}
			s.StartConversation(nil, domain.ThreadTypeBroadcast, "", name, nil)
			thread, err := s.CommitConversation(ctx, text)
			if err != nil {
				fmt.Println("broadcast failed:", err)
				continue
			}
			fmt.Println("broadcast:", thread.ID)

		case "quit", "exit":
			return

		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}
