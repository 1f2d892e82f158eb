// sockettest connects to the realtime server and prints every event to the
// console.
// Usage: go run ./cmd/sockettest --url https://tutorlink.example.com --token $TUTORLINK_TOKEN
//
// The user id is read from the token unless --user is given. With --to and
// --say, one chat message is sent once the session is ready.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/tutorlink-realtime/internal/auth"
	"github.com/rickgao/tutorlink-realtime/internal/connection"
	"github.com/rickgao/tutorlink-realtime/internal/dispatch"
	"github.com/rickgao/tutorlink-realtime/internal/logging"
	"github.com/rickgao/tutorlink-realtime/internal/notification"
)

func main() {
	url := flag.String("url", "http://localhost:5000", "server base URL")
	path := flag.String("path", "/socket.io/", "socket endpoint path")
	token := flag.String("token", os.Getenv("TUTORLINK_TOKEN"), "bearer token")
	user := flag.String("user", "", "user id (overrides the token claim)")
	receiver := flag.String("to", "", "receiver id for --say")
	say := flag.String("say", "", "message to send once ready")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	logger := logging.New(logging.Config{Level: "debug", Format: "text", Output: os.Stdout})

	creds, err := auth.LoadCredentials(*token, *user)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dispatcher := dispatch.New(logger, nil)
	dispatcher.Subscribe(dispatch.SubscriberFunc(func(e dispatch.Event) error {
		printEvent(e, *verbose)
		return nil
	}))

	cfg := connection.DefaultManagerConfig()
	cfg.URL = *url
	cfg.Path = *path
	cfg.Token = creds.Token

	mgr := connection.NewManager(cfg, dispatcher, logger)

	ready := make(chan struct{}, 1)
	mgr.OnStateChange(func(from, to connection.State) {
		fmt.Printf("[STATE] %s -> %s\n", from, to)
		if to == connection.StateReady {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})

	logger.Info("connecting", "url", *url, "user_id", creds.UserID)
	if err := mgr.Connect(ctx, creds.UserID); err != nil {
		logger.Warn("initial connect failed, retrying", "error", err)
	}

	if *say != "" && *receiver != "" {
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-ready:
			}
			err := mgr.Emit(dispatch.EventSendMessage, dispatch.SendMessage{
				SenderID:    creds.UserID,
				ReceiverID:  *receiver,
				Content:     *say,
				MessageType: "text",
			})
			if err != nil {
				logger.Error("send failed", "error", err)
			}
		}()
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs := mgr.Stats()
				ds := dispatcher.Stats()
				logger.Info("stats",
					"state", cs.State,
					"attempt", cs.Attempt,
					"reconnect_pending", cs.ReconnectPending,
					"frames_received", cs.FramesReceived,
					"decode_errors", cs.DecodeErrors,
					"dispatched", ds.Dispatched,
					"subscriber_failures", ds.Failures,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	logger.Info("shutting down...")
	mgr.Disconnect()
	logger.Info("shutdown complete")
}

func printEvent(e dispatch.Event, verbose bool) {
	if verbose {
		var pretty any
		if err := json.Unmarshal(e.Data, &pretty); err == nil {
			data, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Printf("[%s] %s\n", e.Name, data)
			return
		}
		fmt.Printf("[%s] %s\n", e.Name, e.Data)
		return
	}

	if e.Kind == dispatch.KindNotification {
		n, err := notification.Decode(e.Data)
		if err != nil {
			fmt.Printf("[NOTIFICATION] undecodable: %v\n", err)
			return
		}
		fmt.Printf("[NOTIFICATION] id=%s type=%s title=%q read=%v\n", n.ID, n.Type, n.Title, n.Read)
		return
	}

	v, err := e.Typed()
	if err != nil {
		fmt.Printf("[%s] %s\n", e.Name, e.Data)
		return
	}

	switch p := v.(type) {
	case *dispatch.NewMessage:
		fmt.Printf("[MESSAGE] id=%s from=%s to=%s conversation=%s content=%q\n",
			p.ID, p.SenderID, p.ReceiverID, p.ConversationID, p.Content)
	case *dispatch.UnreadCountUpdate:
		fmt.Printf("[UNREAD] count=%d\n", p.UnreadCount)
	case *dispatch.MessagesRead:
		fmt.Printf("[READ] reader=%s conversation=%s count=%d ids=%d\n",
			p.ReaderID, p.ConversationID, p.Count, len(p.MessageIDs))
	case *dispatch.Typing:
		fmt.Printf("[%s] from=%s\n", e.Name, p.SenderID)
	default:
		fmt.Printf("[%s] %+v\n", e.Name, p)
	}
}

