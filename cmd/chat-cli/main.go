package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orbitchat/chat-core/internal/chat"
	"github.com/orbitchat/chat-core/internal/completion"
	"github.com/orbitchat/chat-core/internal/retry"
	"github.com/orbitchat/chat-core/internal/session"
	"github.com/orbitchat/chat-core/internal/storage/postgres"
	"github.com/orbitchat/chat-core/internal/types"
)

var (
	completionURL = flag.String("completion-url", "http://localhost:9000", "Completion endpoint base URL")
	accessToken   = flag.String("token", "", "Bearer token for the completion endpoint")
	refreshURL    = flag.String("refresh-url", "", "Session refresh endpoint (optional)")
	dsn           = flag.String("dsn", "", "PostgreSQL DSN for durable history")
	modelName     = flag.String("model", "gpt-4o-mini", "Model to use")
	publicKey     = flag.String("user", "cli", "Public key owning the conversation")
	searchMode    = flag.Bool("search", false, "Route turns through the search agent")
	interval      = flag.Duration("interval", 15*time.Millisecond, "Reveal cadence")
	chunkSize     = flag.Int("chunk", 2, "Runes revealed per tick")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	logger.SetFormatter(&logrus.TextFormatter{})

	if *accessToken == "" {
		fmt.Fprintln(os.Stderr, "missing -token")
		os.Exit(1)
	}
	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "missing -dsn")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupts
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\nShutting down...")
		cancel()
		os.Exit(0)
	}()

	db, err := postgres.New(ctx, *dsn, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	convRepo := postgres.NewConversationRepository(db.Pool())
	msgRepo := postgres.NewMessageRepository(db.Pool())

	tokenSource := session.NewTokenSource(*refreshURL, logger)
	tokenSource.SetToken(*accessToken)

	client := completion.NewClient(*completionURL, *modelName, 60*time.Second)
	policy := retry.NewPolicy(3, 500*time.Millisecond, true, logger)
	gateway := chat.NewGateway(convRepo, msgRepo, logger)
	orchestrator := chat.NewOrchestrator(client, gateway, policy, tokenSource, logger)

	rooms := chat.NewRegistry(*interval, *chunkSize, logger)
	room := rooms.NewRoom()
	room.SetModel(*modelName)

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Println(boldGreen("chat-core CLI"))
	fmt.Printf("Using model: %s\n", boldCyan(*modelName))
	fmt.Println("Type a message and press Enter. ':regen' redoes the last answer, 'exit' quits.")
	fmt.Println()

	// Print assistant text as the animator reveals it into the room state.
	printer := newRevealPrinter(room)
	defer printer.stop()

	scanner := bufio.NewScanner(os.Stdin)
	var lastAssistant uuid.UUID

	for {
		fmt.Print(boldGreen("You: "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		switch {
		case strings.EqualFold(input, "exit"):
			orchestrator.Drain()
			return

		case input == ":regen":
			if lastAssistant == uuid.Nil {
				fmt.Println("nothing to regenerate yet")
				continue
			}
			fmt.Print(boldCyan("Assistant: "))
			printer.track(lastAssistant)
			err := orchestrator.RegenerateMessage(ctx, room, types.RegenerateRequest{
				TargetClientID: lastAssistant,
			})
			printer.flush()
			fmt.Println()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case input != "":
			fmt.Print(boldCyan("Assistant: "))
			result, err := orchestrator.Send(ctx, room, *publicKey, types.SendRequest{
				RoomID:      room.ID(),
				UserContent: input,
				History:     room.State.Snapshot(),
				Model:       *modelName,
				SearchMode:  *searchMode,
			})
			printer.flush()
			fmt.Println()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			lastAssistant = result.AssistantTurn.ClientID
			printer.track(lastAssistant)
			for _, cit := range result.Response.Citations {
				fmt.Printf("  [%s] %s\n", cit.Title, cit.URL)
			}
		}
	}

	orchestrator.Drain()
}

// revealPrinter echoes a tracked turn's content to stdout as it grows.
type revealPrinter struct {
	room *chat.Room

	mu      sync.Mutex
	target  uuid.UUID
	printed int

	unsubscribe func()
}

func newRevealPrinter(room *chat.Room) *revealPrinter {
	p := &revealPrinter{room: room}
	p.unsubscribe = room.State.Subscribe(p.onChange)
	return p
}

// track switches the printer to a new turn. The orchestrator assigns turn
// ids mid-send, so the first send tracks implicitly via the latest
// assistant turn instead.
func (p *revealPrinter) track(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = id
	p.printed = 0
}

func (p *revealPrinter) onChange() {
	p.mu.Lock()
	defer p.mu.Unlock()

	turns := p.room.State.Snapshot()
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.Role != types.RoleAssistant {
			continue
		}
		if p.target != t.ClientID {
			p.target = t.ClientID
			p.printed = 0
		}
		if len(t.Content) < p.printed {
			// A regeneration restarted the reveal from scratch.
			p.printed = 0
			fmt.Println()
		}
		if len(t.Content) > p.printed {
			fmt.Print(t.Content[p.printed:])
			p.printed = len(t.Content)
		}
		return
	}
}

// flush prints whatever the reveal has not echoed yet.
func (p *revealPrinter) flush() {
	p.onChange()
}

func (p *revealPrinter) stop() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}
