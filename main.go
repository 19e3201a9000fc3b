package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"boostchat/internal/api"
	"boostchat/internal/commands"
	"boostchat/internal/config"
	"boostchat/internal/content"
	"boostchat/internal/http"
	"boostchat/internal/notify"
	"boostchat/internal/private"
	"boostchat/internal/storage"
	"boostchat/internal/stub"
	"boostchat/internal/widget"
)

func run(ctx context.Context) error {
	seedLegacy := flag.String("seed-legacy", "", "Seed an old-format client record (\"FirstName,email[,whatsapp]\") and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if *seedLegacy != "" {
		return commands.SeedLegacy(*seedLegacy, cfg)
	}

	store, err := storage.NewBboltStore(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	backend := stub.New()
	if cfg.VAPIDPrivateKey != "" {
		backend.SetVAPID(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	}
	apiServer := http.NewAPIServer(backend.Handler(), cfg.APIAddr)

	client := api.NewClient(cfg.BaseURL)

	printer := &transcriptPrinter{}
	w, err := widget.New(widget.Config{
		API:          client,
		Store:        store,
		CoachEmail:   cfg.CoachEmail,
		PollInterval: cfg.PollInterval,
		Player:       notify.LogPlayer{},
		Push:         notify.NewPushManager(client, nil),
		Confirm:      confirmOnTerminal,
	})
	if err != nil {
		return err
	}
	printer.widget = w
	defer w.Shutdown()

	g, gCtx := errgroup.WithContext(ctx)

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Terminal session
	g.Go(func() error {
		defer printer.stop()
		return runTerminal(gCtx, w, client, printer)
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

// runTerminal drives the widget from stdin: the lead form when no
// identity is stored yet, then a chat prompt with a few slash commands.
func runTerminal(ctx context.Context, w *widget.Widget, client *api.Client, printer *transcriptPrinter) error {
	scanner := bufio.NewScanner(os.Stdin)

	w.Open(ctx)
	if w.Step() == widget.StepForm {
		for {
			lead, err := readLeadForm(scanner)
			if err != nil {
				return err
			}
			if err := w.SubmitLead(ctx, lead); err == nil {
				break
			} else {
				fmt.Printf("  %v\n", err)
			}
		}
	}
	overlay := private.NewOverlay(ctx, private.Config{
		API:             client,
		ParticipantID:   w.ParticipantID(),
		ParticipantName: w.Lead().FirstName,
	})
	defer overlay.Close()
	printer.overlay = overlay
	printer.start()

	fmt.Println("Commands: /private <id> <name>, /pm <text>, /endprivate, /reset, /delete, /quit")
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		command, rest, _ := strings.Cut(line, " ")

		switch command {
		case "":
			continue
		case "/quit":
			return context.Canceled
		case "/reset":
			w.Reset()
			fmt.Println("Identity cleared. Restart to fill the form again.")
			return context.Canceled
		case "/delete":
			if err := w.DeleteHistory(ctx); err != nil {
				fmt.Printf("  some deletions failed: %v\n", err)
			}
		case "/private":
			targetID, targetName, _ := strings.Cut(rest, " ")
			if err := overlay.Open(ctx, targetID, targetName); err != nil {
				fmt.Printf("  %v\n", err)
				continue
			}
			if !overlay.IsOpen() {
				fmt.Println("  conversation privée indisponible")
			}
		case "/pm":
			overlay.SetDraft(rest)
			overlay.Send(ctx, rest)
		case "/endprivate":
			overlay.Close()
		default:
			if err := w.SendMessage(ctx, line); err != nil {
				fmt.Printf("  %v\n", err)
			}
		}
	}
}

func readLeadForm(scanner *bufio.Scanner) (lead content.Lead, err error) {
	prompt := func(label string) (string, error) {
		fmt.Printf("%s: ", label)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", errors.New("input closed")
		}
		return scanner.Text(), nil
	}

	if lead.FirstName, err = prompt("Prénom"); err != nil {
		return lead, err
	}
	if lead.WhatsApp, err = prompt("WhatsApp"); err != nil {
		return lead, err
	}
	lead.Email, err = prompt("Email")
	return lead, err
}

func confirmOnTerminal(promptText string) bool {
	fmt.Printf("%s [y/N] ", promptText)
	var answer string
	_, _ = fmt.Scanln(&answer)
	return strings.EqualFold(answer, "y")
}

// transcriptPrinter echoes messages to the terminal as they appear,
// including ones arriving through the poll loops of the main chat and
// the private window.
type transcriptPrinter struct {
	mu             sync.Mutex
	widget         *widget.Widget
	overlay        *private.Overlay
	out            io.Writer
	printed        int
	printedPrivate int
	cancel         context.CancelFunc
}

func (p *transcriptPrinter) start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.flush()
			}
		}
	}()
	p.flush()
}

func (p *transcriptPrinter) stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *transcriptPrinter) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.out
	if out == nil {
		out = os.Stdout
	}

	msgs := p.widget.Messages()
	if len(msgs) < p.printed {
		p.printed = 0
	}
	for _, m := range msgs[p.printed:] {
		name := m.SenderName
		if name == "" {
			name = string(m.Type)
		}
		fmt.Fprintf(out, "[%s] %s\n", name, m.Text)
	}
	p.printed = len(msgs)

	if p.overlay == nil || !p.overlay.IsOpen() {
		p.printedPrivate = 0
		return
	}
	pmsgs := p.overlay.Messages()
	if len(pmsgs) < p.printedPrivate {
		p.printedPrivate = 0
	}
	for _, m := range pmsgs[p.printedPrivate:] {
		fmt.Fprintf(out, "[privé %s] %s\n", m.SenderName, m.Text)
	}
	p.printedPrivate = len(pmsgs)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
